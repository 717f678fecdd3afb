// Package supervisor owns the fleet of AgentRuntimes: starting and stopping
// them, the kill-switch, backlog resets and deployment groups. It is the
// Supervisor's Go home.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/codeready-toolchain/agentbus/pkg/bus"
	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/handler"
	"github.com/codeready-toolchain/agentbus/pkg/runtime"
	"github.com/codeready-toolchain/agentbus/pkg/store"
)

var (
	// ErrAlreadyRunning is returned by Start when a Running record already
	// exists for the agent.
	ErrAlreadyRunning = errors.New("supervisor: agent already running")

	// ErrNotRunning is returned by Stop/Kill when the agent has no live
	// runtime, including when its record remains as Stopped or Crashed.
	ErrNotRunning = errors.New("supervisor: agent not running")

	// ErrStartupTimeout is returned when a runtime doesn't signal ready
	// within startupGrace.
	ErrStartupTimeout = errors.New("supervisor: startup grace exceeded")

	// ErrResetWhileRunning is returned by ResetBacklog for a Running agent.
	ErrResetWhileRunning = errors.New("supervisor: cannot reset backlog while agent is running")
)

// StartRequest carries Start's parameters. Fields left zero fall back to
// the agent's registered AgentIdentity, if any.
type StartRequest struct {
	Agent             string
	HandlerKind       config.HandlerKind
	Provider          string
	Model             string
	SystemPrompt      string
	DeploymentGroupID string
}

// SupervisedBus is what the Supervisor needs from a bus connection: the
// runtime's small call surface plus Close, so it can own the connection's
// lifecycle. *bus.Client satisfies this structurally; tests substitute a
// fake to avoid dialing a real MCP endpoint.
type SupervisedBus interface {
	runtime.BusClient
	Close() error
}

// runningAgent bundles everything the Supervisor owns for one live runtime.
type runningAgent struct {
	rt     *runtime.AgentRuntime
	bus    SupervisedBus
	cancel context.CancelFunc
}

// Supervisor owns the fleet. It holds one shared MessageStore (messages for
// every agent live in the same table, partitioned by the agent column) and
// one KillSwitch, and creates/destroys AgentRuntime+BusClient pairs on
// demand.
type Supervisor struct {
	cfg   *config.Config
	store *store.Store
	kill  *KillSwitch

	// dialBus creates a SupervisedBus for agent. Defaults to bus.New;
	// overridable in tests.
	dialBus func(agent string) (SupervisedBus, error)

	lifecycle *lifecycleTable

	mu     sync.Mutex
	agents map[string]*runningAgent

	// runtimeIDHook, if set, is called whenever an agent's runtime id is
	// assigned or cleared. See OnRuntimeIDChange.
	runtimeIDHook func(agent, runtimeID string)

	healthCron *cron.Cron
	logger     *slog.Logger
}

func (s *Supervisor) notifyRuntimeID(agent, runtimeID string) {
	s.mu.Lock()
	hook := s.runtimeIDHook
	s.mu.Unlock()
	if hook != nil {
		hook(agent, runtimeID)
	}
}

// New constructs a Supervisor. It opens the KillSwitch's on-disk flag under
// cfg.DataDir and starts the health watchdog cron job.
func New(cfg *config.Config, st *store.Store) (*Supervisor, error) {
	ks, err := NewKillSwitch(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("supervisor: kill switch: %w", err)
	}

	s := &Supervisor{
		cfg:       cfg,
		store:     st,
		kill:      ks,
		lifecycle: newLifecycleTable(),
		agents:    make(map[string]*runningAgent),
		logger:    slog.With("component", "supervisor"),
	}
	s.dialBus = func(agent string) (SupervisedBus, error) {
		return bus.New(agent, cfg.Bus.Transport, cfg.Runtime.BusRateLimitPerMinute)
	}

	s.healthCron = cron.New()
	schedule := cfg.Runtime.HealthWatchdogSchedule
	if schedule == "" {
		schedule = "@every 30s"
	}
	if _, err := s.healthCron.AddFunc(schedule, s.scanHealth); err != nil {
		return nil, fmt.Errorf("supervisor: health watchdog schedule %q: %w", schedule, err)
	}
	s.healthCron.Start()

	return s, nil
}

// KillSwitch exposes the Supervisor's kill switch for ControlPlane routes.
func (s *Supervisor) KillSwitch() *KillSwitch { return s.kill }

// SetDialer overrides how the Supervisor connects an agent's bus. Intended
// for tests that can't dial a real MCP endpoint; production callers should
// leave the default (bus.New) in place.
func (s *Supervisor) SetDialer(fn func(agent string) (SupervisedBus, error)) {
	s.mu.Lock()
	s.dialBus = fn
	s.mu.Unlock()
}

// Monitors returns every lifecycle record, for GET /monitors.
func (s *Supervisor) Monitors() []*AgentLifecycleRecord { return s.lifecycle.all() }

// AgentLifecycle returns a single agent's lifecycle record, if one exists.
func (s *Supervisor) AgentLifecycle(agent string) (*AgentLifecycleRecord, bool) {
	return s.lifecycle.get(agent)
}

// AgentForRuntimeID resolves a runtime id to its agent name, for routes
// that address a runtime by id (POST /monitors/stop, /monitors/kill).
func (s *Supervisor) AgentForRuntimeID(runtimeID string) (string, bool) {
	return s.lifecycle.agentForRuntimeID(runtimeID)
}

// OnRuntimeIDChange registers a hook invoked whenever an agent's runtime id
// is assigned (on Start) or cleared (on Stop/Kill, with an empty id). The
// ControlPlane uses this to keep its LogMux's agent->runtime_id mapping
// current without the Supervisor importing the controlplane package.
func (s *Supervisor) OnRuntimeIDChange(fn func(agent, runtimeID string)) {
	s.mu.Lock()
	s.runtimeIDHook = fn
	s.mu.Unlock()
}

// Start launches a new AgentRuntime for req.Agent, per spec: Conflict if
// already Running, framework-validate, create the runtime with a unique id,
// wait for readiness bounded by startupGrace, then record Running.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) error {
	s.mu.Lock()
	if _, running := s.agents[req.Agent]; running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.mu.Unlock()

	identity := s.resolveIdentity(req)

	if err := config.ValidateAgentFramework(identity); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	h, err := handler.Build(identity)
	if err != nil {
		return fmt.Errorf("supervisor: build handler: %w", err)
	}

	runtimeID := uuid.NewString()
	s.lifecycle.put(&AgentLifecycleRecord{
		Agent:             req.Agent,
		HandlerKind:       identity.HandlerKind,
		Provider:          identity.Provider,
		Model:             identity.Model,
		SystemPromptName:  identity.SystemPrompt,
		Status:            StatusStarting,
		StartedAt:         time.Now(),
		RuntimeID:         runtimeID,
		DeploymentGroupID: req.DeploymentGroupID,
	})

	runCtx, cancel := context.WithCancel(context.Background())

	type startResult struct {
		busClient SupervisedBus
		rt        *runtime.AgentRuntime
		err       error
	}
	resultCh := make(chan startResult, 1)

	go func() {
		busClient, err := s.dialBus(req.Agent)
		if err != nil {
			resultCh <- startResult{err: fmt.Errorf("connect bus: %w", err)}
			return
		}
		rt := runtime.New(req.Agent, s.store, busClient, h, s.cfg.Runtime, s.kill)
		rt.Start(runCtx)
		resultCh <- startResult{busClient: busClient, rt: rt}
	}()

	grace := s.cfg.Runtime.StartupGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			cancel()
			s.lifecycle.setStatusWithExit(req.Agent, StatusCrashed, ExitCrashed)
			return fmt.Errorf("supervisor: start %s: %w", req.Agent, res.err)
		}
		s.mu.Lock()
		s.agents[req.Agent] = &runningAgent{rt: res.rt, bus: res.busClient, cancel: cancel}
		s.mu.Unlock()
		s.lifecycle.setStatus(req.Agent, StatusRunning)
		s.notifyRuntimeID(req.Agent, runtimeID)
		s.logger.Info("agent started", "agent", req.Agent, "runtime_id", runtimeID)
		return nil
	case <-time.After(grace):
		cancel()
		s.lifecycle.setStatusWithExit(req.Agent, StatusCrashed, ExitCrashed)
		return ErrStartupTimeout
	case <-ctx.Done():
		cancel()
		s.lifecycle.setStatusWithExit(req.Agent, StatusCrashed, ExitCrashed)
		return ctx.Err()
	}
}

// resolveIdentity merges req's overrides on top of the agent's registered
// AgentIdentity, if any, falling back to req alone for ad hoc starts.
func (s *Supervisor) resolveIdentity(req StartRequest) *config.AgentIdentity {
	base, err := s.cfg.AgentRegistry.Get(req.Agent)
	if err != nil {
		base = &config.AgentIdentity{Name: req.Agent}
	}
	identity := *base
	identity.Name = req.Agent
	if req.HandlerKind != "" {
		identity.HandlerKind = req.HandlerKind
	}
	if req.Provider != "" {
		identity.Provider = req.Provider
	}
	if req.Model != "" {
		identity.Model = req.Model
	}
	if req.SystemPrompt != "" {
		identity.SystemPrompt = req.SystemPrompt
	}
	return &identity
}

// Stop sends a cooperative shutdown signal and waits stopGrace for graceful
// exit before forcing termination via context cancellation.
func (s *Supervisor) Stop(agent string) error {
	s.mu.Lock()
	ra, ok := s.agents[agent]
	if ok {
		delete(s.agents, agent)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	done := make(chan struct{})
	go func() {
		ra.rt.Stop()
		close(done)
	}()

	grace := s.cfg.Runtime.StopGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("stop grace exceeded, forcing termination", "agent", agent)
	}
	ra.cancel()
	_ = ra.bus.Close()

	s.lifecycle.setStatusWithExit(agent, StatusStopped, ExitNormal)
	s.notifyRuntimeID(agent, "")
	s.logger.Info("agent stopped", "agent", agent)
	return nil
}

// Kill forcibly terminates a runtime with no grace period. State -> Stopped.
func (s *Supervisor) Kill(agent string) error {
	s.mu.Lock()
	ra, ok := s.agents[agent]
	if ok {
		delete(s.agents, agent)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	ra.cancel()
	_ = ra.bus.Close()
	s.lifecycle.setStatusWithExit(agent, StatusStopped, ExitCancelled)
	s.notifyRuntimeID(agent, "")
	s.logger.Warn("agent killed", "agent", agent)
	return nil
}

// StopAll stops every currently running agent, tolerating individual
// failures and returning the accumulated error (if any).
func (s *Supervisor) StopAll() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	s.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := s.Stop(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PauseAll activates the kill switch, pausing every runtime's poller and
// processor in place within the bounded staleness window.
func (s *Supervisor) PauseAll() error { return s.kill.Activate() }

// ResumeAll deactivates the kill switch.
func (s *Supervisor) ResumeAll() error { return s.kill.Deactivate() }

// ResetBacklog purges the agent's pending queue and drains any unread
// messages addressed to it remotely. Only permitted when the agent is not
// Running.
func (s *Supervisor) ResetBacklog(ctx context.Context, agent string) error {
	s.mu.Lock()
	_, running := s.agents[agent]
	s.mu.Unlock()
	if running {
		return ErrResetWhileRunning
	}

	if _, err := s.store.Purge(ctx, agent); err != nil {
		return fmt.Errorf("supervisor: purge backlog: %w", err)
	}

	busClient, err := s.dialBus(agent)
	if err != nil {
		return fmt.Errorf("supervisor: connect bus for reset: %w", err)
	}
	defer func() { _ = busClient.Close() }()

	maxIter := s.cfg.Runtime.ResetBacklogMaxIterations
	if maxIter <= 0 {
		maxIter = 200
	}
	for i := 0; i < maxIter; i++ {
		msgs, err := busClient.Receive(ctx, time.Second)
		if err != nil {
			return fmt.Errorf("supervisor: reset backlog drain: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
	}
	return nil
}

// Shutdown stops the health watchdog and every running agent. Intended for
// process exit.
func (s *Supervisor) Shutdown() {
	stopCtx := s.healthCron.Stop()
	<-stopCtx.Done()
	if err := s.StopAll(); err != nil {
		s.logger.Error("shutdown: stop all failed", "error", err)
	}
	s.kill.Close()
}
