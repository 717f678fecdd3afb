// Package runtime implements AgentRuntime: the per-agent loop of three
// cooperating tasks — poller, processor, heartbeat — that turn a MessageStore
// and a BusClient into a running conversational agent.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbus/pkg/bus"
	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// Handler is the pluggable decision function a Processor invokes for every
// claimed trigger. It returns the text to publish and whether to publish at
// all — the Go rendering of the distilled contract's "string | None".
type Handler interface {
	Handle(trigger store.Message, batch []store.Message, history []store.Message) (response string, ok bool)
}

// BusClient is the subset of *bus.Client the runtime depends on. Declaring
// it as an interface here — rather than importing the concrete type
// directly into every signature — lets tests substitute a fake bus without
// spinning up a real MCP session.
type BusClient interface {
	Send(ctx context.Context, content, parentID string) (string, error)
	Receive(ctx context.Context, timeout time.Duration) ([]bus.Message, error)
	Ping(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

// KillSwitch reports whether the fleet-wide kill switch is currently active.
// Supervisor owns the concrete implementation (fsnotify + atomic.Bool); the
// runtime only ever reads it.
type KillSwitch interface {
	Active() bool
}

// alwaysOff is the default KillSwitch used when a runtime is constructed
// without a Supervisor (e.g. in tests or standalone use).
type alwaysOff struct{}

func (alwaysOff) Active() bool { return false }

// pauseState is owned by the AgentRuntime. The processor sets it from
// #pause/#stop/#done; from outside it changes only through the runtime's
// exported Pause/Resume methods, which the Supervisor does not call.
type pauseState struct {
	mu     sync.RWMutex
	paused bool
	until  time.Time // zero means indefinite once paused is true
}

func (p *pauseState) blocked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.paused {
		return false
	}
	if p.until.IsZero() {
		return true
	}
	return time.Now().Before(p.until)
}

// pauseIndefinite enters PauseState with no scheduled resume (#pause/#stop).
func (p *pauseState) pauseIndefinite() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.until = time.Time{}
}

// pauseFor enters PauseState that self-clears after d (#done).
func (p *pauseState) pauseFor(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.until = time.Now().Add(d)
}

// resume clears PauseState immediately — backs AgentRuntime.Resume.
func (p *pauseState) resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.until = time.Time{}
}

// snapshot reports the current pause state for external inspection
// (Supervisor status, ControlPlane /monitors).
func (p *pauseState) snapshot() (paused bool, until time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused, p.until
}
