package controlplane

import (
	"context"
	"net"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/supervisor"
	"github.com/codeready-toolchain/agentbus/pkg/version"
)

// Server is the HTTP/WebSocket control plane over a Supervisor, grounded on
// the teacher's pkg/api.Server: an Echo v5 app plus an *http.Server for
// graceful start/shutdown.
type Server struct {
	echo          *echo.Echo
	httpServer    *http.Server
	sup           *supervisor.Supervisor
	agentRegistry *config.AgentRegistry
	logMux        *LogMux
}

// NewServer builds a Server and registers every route.
func NewServer(sup *supervisor.Supervisor, registry *config.AgentRegistry, logMux *LogMux) *Server {
	e := echo.New()

	s := &Server{
		echo:          e,
		sup:           sup,
		agentRegistry: registry,
		logMux:        logMux,
	}

	if logMux != nil {
		sup.OnRuntimeIDChange(logMux.SetRuntimeID)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/monitors/start", s.startMonitorHandler)
	s.echo.POST("/monitors/stop", s.stopMonitorHandler)
	s.echo.POST("/monitors/kill", s.killMonitorHandler)
	s.echo.POST("/monitors/stop-all", s.stopAllHandler)
	s.echo.GET("/monitors", s.monitorsHandler)

	s.echo.POST("/kill-switch/deactivate", s.deactivateKillSwitchHandler)
	s.echo.GET("/kill-switch/status", s.killSwitchStatusHandler)

	s.echo.POST("/agents/:name/reset", s.resetAgentHandler)
	s.echo.POST("/agents/reset", s.resetEnvironmentHandler)

	s.echo.POST("/deployments/:id/start", s.deployGroupHandler)
	s.echo.POST("/deployments/:id/stop", s.stopGroupHandler)

	s.echo.GET("/logs", s.logsHandler)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "healthy",
		"version":       version.Full(),
		"kill_switch":   s.sup.KillSwitch().Active(),
		"monitor_count": len(s.sup.Monitors()),
	})
}

// logsHandler upgrades GET /logs to a WebSocket and hands it to the LogMux.
func (s *Server) logsHandler(c *echo.Context) error {
	if s.logMux == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "log streaming not available")
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	s.logMux.HandleConnection(c.Request().Context(), conn)
	return nil
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the server on a pre-created listener. Used by
// tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
