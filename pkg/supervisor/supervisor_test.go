package supervisor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbus/pkg/bus"
	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// fakeBus is a deterministic SupervisedBus stand-in, avoiding a real MCP
// dial in Supervisor-level tests.
type fakeBus struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeBus) Send(_ context.Context, _, _ string) (string, error) { return "m-1", nil }

// Receive always reports no messages, with a short delay so the poller
// goroutine (and ResetBacklog's drain loop) don't busy-spin in tests.
func (f *fakeBus) Receive(_ context.Context, _ time.Duration) ([]bus.Message, error) {
	time.Sleep(2 * time.Millisecond)
	return nil, nil
}
func (f *fakeBus) Ping(_ context.Context) error      { return nil }
func (f *fakeBus) Reconnect(_ context.Context) error { return nil }
func (f *fakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testConfig(t *testing.T, agents map[string]*config.AgentIdentity, groups map[string]*config.DeploymentGroup) *config.Config {
	t.Helper()
	if agents == nil {
		agents = map[string]*config.AgentIdentity{}
	}
	if groups == nil {
		groups = map[string]*config.DeploymentGroup{}
	}
	rt := config.DefaultRuntimeConfig()
	rt.HeartbeatInterval = 0 // disable heartbeat goroutine noise in tests
	rt.HealthWatchdogSchedule = "@every 1h"
	return &config.Config{
		DataDir:            t.TempDir(),
		Bus:                &config.BusConfig{Transport: config.TransportConfig{Type: config.TransportTypeStdio, Command: "unused"}},
		Runtime:            rt,
		AgentRegistry:      config.NewAgentRegistry(agents),
		DeploymentRegistry: config.NewDeploymentRegistry(groups),
	}
}

func newTestSupervisor(t *testing.T, cfg *config.Config) (*Supervisor, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "supervisor-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s, err := New(cfg, st)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	s.dialBus = func(agent string) (SupervisedBus, error) { return &fakeBus{}, nil }
	return s, st
}

func TestStartCreatesRunningLifecycleRecord(t *testing.T) {
	cfg := testConfig(t, map[string]*config.AgentIdentity{
		"alpha": {Name: "alpha", HandlerKind: config.HandlerKindEcho},
	}, nil)
	s, _ := newTestSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background(), StartRequest{Agent: "alpha"}))

	monitors := s.Monitors()
	require.Len(t, monitors, 1)
	require.Equal(t, StatusRunning, monitors[0].Status)
}

func TestStartConflictsWhenAlreadyRunning(t *testing.T) {
	cfg := testConfig(t, map[string]*config.AgentIdentity{
		"alpha": {Name: "alpha", HandlerKind: config.HandlerKindEcho},
	}, nil)
	s, _ := newTestSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background(), StartRequest{Agent: "alpha"}))
	err := s.Start(context.Background(), StartRequest{Agent: "alpha"})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartRejectsInvalidFrameworkConfig(t *testing.T) {
	cfg := testConfig(t, nil, nil)
	s, _ := newTestSupervisor(t, cfg)

	err := s.Start(context.Background(), StartRequest{Agent: "beta", HandlerKind: config.HandlerKindLocalLLM})
	require.Error(t, err, "local-llm with no model should fail framework validation")
}

func TestStopTransitionsToStoppedAndClosesBus(t *testing.T) {
	cfg := testConfig(t, map[string]*config.AgentIdentity{
		"alpha": {Name: "alpha", HandlerKind: config.HandlerKindEcho},
	}, nil)
	s, _ := newTestSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background(), StartRequest{Agent: "alpha"}))
	require.NoError(t, s.Stop("alpha"))

	monitors := s.Monitors()
	require.Len(t, monitors, 1)
	require.Equal(t, StatusStopped, monitors[0].Status)
	require.NotNil(t, monitors[0].ExitCode)
	require.Equal(t, ExitNormal, *monitors[0].ExitCode)

	require.ErrorIs(t, s.Stop("alpha"), ErrNotRunning)
}

func TestKillRemovesRunningAgent(t *testing.T) {
	cfg := testConfig(t, map[string]*config.AgentIdentity{
		"alpha": {Name: "alpha", HandlerKind: config.HandlerKindEcho},
	}, nil)
	s, _ := newTestSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background(), StartRequest{Agent: "alpha"}))
	require.NoError(t, s.Kill("alpha"))
	require.ErrorIs(t, s.Kill("alpha"), ErrNotRunning)

	monitors := s.Monitors()
	require.Len(t, monitors, 1)
	require.NotNil(t, monitors[0].ExitCode)
	require.Equal(t, ExitCancelled, *monitors[0].ExitCode)
}

func TestResetBacklogRejectedWhileRunning(t *testing.T) {
	cfg := testConfig(t, map[string]*config.AgentIdentity{
		"alpha": {Name: "alpha", HandlerKind: config.HandlerKindEcho},
	}, nil)
	s, _ := newTestSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background(), StartRequest{Agent: "alpha"}))
	err := s.ResetBacklog(context.Background(), "alpha")
	require.ErrorIs(t, err, ErrResetWhileRunning)
}

func TestResetBacklogPurgesPendingWhenStopped(t *testing.T) {
	cfg := testConfig(t, nil, nil)
	s, st := newTestSupervisor(t, cfg)

	_, err := st.Enqueue(context.Background(), "m1", "alpha", "bob", "hi")
	require.NoError(t, err)

	require.NoError(t, s.ResetBacklog(context.Background(), "alpha"))

	stats, err := st.Stats(context.Background(), "alpha")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Pending)
}

func TestPauseAllAndResumeAllToggleKillSwitch(t *testing.T) {
	cfg := testConfig(t, nil, nil)
	s, _ := newTestSupervisor(t, cfg)

	require.False(t, s.KillSwitch().Active())
	require.NoError(t, s.PauseAll())
	require.True(t, s.KillSwitch().Active())
	require.NoError(t, s.ResumeAll())
	require.False(t, s.KillSwitch().Active())
}

func TestDeployGroupStartsEveryMemberTolerantly(t *testing.T) {
	cfg := testConfig(t, nil, map[string]*config.DeploymentGroup{
		"team-a": {
			ID:             "team-a",
			DefaultHandler: config.HandlerKindEcho,
			Members: []config.DeploymentMember{
				{Agent: "alpha"},
				{Agent: "beta"},
			},
		},
	})
	s, _ := newTestSupervisor(t, cfg)

	results, err := s.DeployGroup(context.Background(), "team-a")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NoError(t, results["alpha"])
	require.NoError(t, results["beta"])

	require.Len(t, s.Monitors(), 2)
}

func TestStopGroupStopsEveryMember(t *testing.T) {
	cfg := testConfig(t, nil, map[string]*config.DeploymentGroup{
		"team-a": {
			ID:             "team-a",
			DefaultHandler: config.HandlerKindEcho,
			Members: []config.DeploymentMember{
				{Agent: "alpha"},
			},
		},
	})
	s, _ := newTestSupervisor(t, cfg)

	_, err := s.DeployGroup(context.Background(), "team-a")
	require.NoError(t, err)

	results, err := s.StopGroup("team-a")
	require.NoError(t, err)
	require.NoError(t, results["alpha"])
}

func TestScanHealthKillsStaleRuntime(t *testing.T) {
	cfg := testConfig(t, map[string]*config.AgentIdentity{
		"alpha": {Name: "alpha", HandlerKind: config.HandlerKindEcho},
	}, nil)
	cfg.Runtime.HandlerTimeout = time.Millisecond
	s, _ := newTestSupervisor(t, cfg)

	require.NoError(t, s.Start(context.Background(), StartRequest{Agent: "alpha"}))
	time.Sleep(5 * time.Millisecond)

	s.scanHealth()

	monitors := s.Monitors()
	require.Len(t, monitors, 1)
	require.Equal(t, StatusCrashed, monitors[0].Status)
	require.NotNil(t, monitors[0].ExitCode)
	require.Equal(t, ExitCrashed, *monitors[0].ExitCode)
}
