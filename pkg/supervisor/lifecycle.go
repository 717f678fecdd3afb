package supervisor

import (
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbus/pkg/config"
)

// LifecycleStatus is an AgentLifecycleRecord's state.
type LifecycleStatus string

const (
	StatusStarting LifecycleStatus = "Starting"
	StatusRunning  LifecycleStatus = "Running"
	StatusPaused   LifecycleStatus = "Paused"
	StatusStopped  LifecycleStatus = "Stopped"
	StatusCrashed  LifecycleStatus = "Crashed"
)

// Synthetic exit codes recorded on AgentLifecycleRecord when a runtime
// stops, mirroring the 0/130/non-zero process-exit convention an
// OS-subprocess runtime would have, even though an AgentRuntime here is a
// goroutine group rather than a subprocess: a graceful Stop ends the
// goroutines the way a handled SIGTERM would (ExitNormal), Kill tears them
// down immediately with no grace the way a forced signal would
// (ExitCancelled), and anything the health watchdog or a failed Start
// reports is ExitCrashed.
const (
	ExitNormal    = 0
	ExitCancelled = 130
	ExitCrashed   = 1
)

// AgentLifecycleRecord is the Supervisor's in-memory record of one agent's
// runtime: identity, how it was launched, and its current status. It is
// created when the operator starts an agent. Stop, Kill and Shutdown only
// change its status; nothing removes it from the table, so a stopped or
// crashed agent stays listed for the life of the Supervisor.
type AgentLifecycleRecord struct {
	Agent             string
	HandlerKind       config.HandlerKind
	Provider          string
	Model             string
	SystemPromptName  string
	Status            LifecycleStatus
	StartedAt         time.Time
	RuntimeID         string
	DeploymentGroupID string
	// ExitCode is nil until the runtime has actually stopped once (see the
	// Exit* constants); it stays nil through Starting/Running/Paused.
	ExitCode *int
}

// lifecycleTable is the thread-safe registry of AgentLifecycleRecords,
// mirroring config.AgentRegistry's copy-in/copy-out shape.
type lifecycleTable struct {
	mu      sync.RWMutex
	records map[string]*AgentLifecycleRecord
}

func newLifecycleTable() *lifecycleTable {
	return &lifecycleTable{records: make(map[string]*AgentLifecycleRecord)}
}

func (t *lifecycleTable) get(agent string) (*AgentLifecycleRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[agent]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (t *lifecycleTable) put(r *AgentLifecycleRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *r
	t.records[r.Agent] = &cp
}

func (t *lifecycleTable) delete(agent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, agent)
}

func (t *lifecycleTable) setStatus(agent string, status LifecycleStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[agent]; ok {
		r.Status = status
	}
}

// setStatusWithExit is setStatus plus recording the synthetic exit code a
// terminal status (Stopped, Crashed) stops with.
func (t *lifecycleTable) setStatusWithExit(agent string, status LifecycleStatus, exitCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[agent]; ok {
		r.Status = status
		r.ExitCode = &exitCode
	}
}

// agentForRuntimeID resolves a runtime id back to its agent name, for
// routes that address a runtime by id rather than by agent (POST
// /monitors/stop, /monitors/kill).
func (t *lifecycleTable) agentForRuntimeID(runtimeID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for agent, r := range t.records {
		if r.RuntimeID == runtimeID {
			return agent, true
		}
	}
	return "", false
}

// all returns a defensive copy of every lifecycle record, used by the
// ControlPlane's GET /monitors.
func (t *lifecycleTable) all() []*AgentLifecycleRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*AgentLifecycleRecord, 0, len(t.records))
	for _, r := range t.records {
		cp := *r
		out = append(out, &cp)
	}
	return out
}
