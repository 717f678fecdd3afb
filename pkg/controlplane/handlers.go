package controlplane

import (
	"net/http"
	"sort"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentbus/pkg/supervisor"
)

// startMonitorHandler handles POST /monitors/start.
func (s *Server) startMonitorHandler(c *echo.Context) error {
	var req StartMonitorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Agent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent is required")
	}

	startReq := supervisor.StartRequest{
		Agent:        req.Agent,
		HandlerKind:  req.HandlerKind,
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	}
	if err := s.sup.Start(c.Request().Context(), startReq); err != nil {
		return mapSupervisorError(err)
	}

	record, ok := s.sup.AgentLifecycle(req.Agent)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "runtime started but lifecycle record missing")
	}
	return c.JSON(http.StatusOK, StartMonitorResponse{RuntimeID: record.RuntimeID})
}

// stopMonitorHandler handles POST /monitors/stop.
func (s *Server) stopMonitorHandler(c *echo.Context) error {
	agent, err := s.agentForRequest(c)
	if err != nil {
		return err
	}
	if stopErr := s.sup.Stop(agent); stopErr != nil {
		return mapSupervisorError(stopErr)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// killMonitorHandler handles POST /monitors/kill.
func (s *Server) killMonitorHandler(c *echo.Context) error {
	agent, err := s.agentForRequest(c)
	if err != nil {
		return err
	}
	if killErr := s.sup.Kill(agent); killErr != nil {
		return mapSupervisorError(killErr)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// agentForRequest resolves a RuntimeIDRequest body to the agent name the
// Supervisor addresses Stop/Kill by.
func (s *Server) agentForRequest(c *echo.Context) (string, error) {
	var req RuntimeIDRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RuntimeID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "runtime_id is required")
	}
	agent, ok := s.sup.AgentForRuntimeID(req.RuntimeID)
	if !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, "no running monitor with that runtime_id")
	}
	return agent, nil
}

// stopAllHandler handles POST /monitors/stop-all. Per spec this activates
// the kill switch rather than tearing down every runtime.
func (s *Server) stopAllHandler(c *echo.Context) error {
	if err := s.sup.PauseAll(); err != nil {
		return mapSupervisorError(err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// deactivateKillSwitchHandler handles POST /kill-switch/deactivate.
func (s *Server) deactivateKillSwitchHandler(c *echo.Context) error {
	if err := s.sup.ResumeAll(); err != nil {
		return mapSupervisorError(err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// killSwitchStatusHandler handles GET /kill-switch/status.
func (s *Server) killSwitchStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, KillSwitchStatusResponse{Active: s.sup.KillSwitch().Active()})
}

// resetAgentHandler handles POST /agents/:name/reset.
func (s *Server) resetAgentHandler(c *echo.Context) error {
	agent := c.Param("name")
	if agent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent name is required")
	}
	if err := s.sup.ResetBacklog(c.Request().Context(), agent); err != nil {
		return mapSupervisorError(err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// resetEnvironmentHandler handles POST /agents/reset?environment=….
// Bulk-resets every registered agent in scope that isn't currently running,
// tolerating individual failures and reporting per-agent results.
func (s *Server) resetEnvironmentHandler(c *echo.Context) error {
	env := c.QueryParam("environment")
	identities := s.agentRegistry.ByEnvironment(env)

	running := make(map[string]bool)
	for _, m := range s.sup.Monitors() {
		running[m.Agent] = m.Status == supervisor.StatusRunning || m.Status == supervisor.StatusStarting
	}

	results := make(map[string]error, len(identities))
	for _, id := range identities {
		if running[id.Name] {
			continue
		}
		results[id.Name] = s.sup.ResetBacklog(c.Request().Context(), id.Name)
	}
	return c.JSON(http.StatusOK, groupOpResponse(results))
}

// deployGroupHandler handles POST /deployments/:id/start.
func (s *Server) deployGroupHandler(c *echo.Context) error {
	id := c.Param("id")
	results, err := s.sup.DeployGroup(c.Request().Context(), id)
	if err != nil {
		return mapSupervisorError(err)
	}
	return c.JSON(http.StatusOK, groupOpResponse(results))
}

// stopGroupHandler handles POST /deployments/:id/stop.
func (s *Server) stopGroupHandler(c *echo.Context) error {
	id := c.Param("id")
	results, err := s.sup.StopGroup(id)
	if err != nil {
		return mapSupervisorError(err)
	}
	return c.JSON(http.StatusOK, groupOpResponse(results))
}

// monitorsHandler handles GET /monitors: the fleet snapshot.
func (s *Server) monitorsHandler(c *echo.Context) error {
	records := s.sup.Monitors()
	snapshots := make([]MonitorSnapshot, 0, len(records))
	for _, r := range records {
		snapshots = append(snapshots, snapshotFrom(r))
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Agent < snapshots[j].Agent })
	return c.JSON(http.StatusOK, snapshots)
}
