package controlplane

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/supervisor"
)

// mapSupervisorError maps Supervisor sentinel errors to HTTP error
// responses, mirroring the teacher's mapServiceError split.
func mapSupervisorError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, supervisor.ErrNotRunning):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, supervisor.ErrStartupTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, supervisor.ErrResetWhileRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, config.ErrUnknownHandlerKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
