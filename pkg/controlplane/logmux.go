// Package controlplane is the HTTP/WebSocket surface over the Supervisor:
// monitor start/stop/kill, the kill switch, backlog resets, deployment
// groups and a multiplexed log stream.
package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// LogFrame is one line streamed over WS /logs.
type LogFrame struct {
	RuntimeID string `json:"runtime_id"`
	Line      string `json:"line"`
	IsVerbose bool   `json:"is_verbose"`
}

// LogMux fans out every AgentRuntime's log output to subscribed WebSocket
// clients. Adapted from the teacher's events.ConnectionManager, collapsed to
// a single global stream since this surface has exactly one channel ("logs"),
// not per-session pub/sub.
type LogMux struct {
	mu    sync.RWMutex
	conns map[string]*websocket.Conn

	runtimeMu sync.RWMutex
	runtimeID map[string]string // agent -> current runtime id, set by Supervisor hooks

	writeTimeout time.Duration
	base         slog.Handler
}

// NewLogMux wraps base (the process's real log sink, e.g. a slog.TextHandler
// on stderr) with a tee that also publishes to WS subscribers.
func NewLogMux(base slog.Handler, writeTimeout time.Duration) *LogMux {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &LogMux{
		conns:        make(map[string]*websocket.Conn),
		runtimeID:    make(map[string]string),
		writeTimeout: writeTimeout,
		base:         base,
	}
}

// SetRuntimeID records the runtime id currently backing agent, so its log
// lines are tagged correctly. Call with an empty id to clear it on stop.
func (m *LogMux) SetRuntimeID(agent, runtimeID string) {
	m.runtimeMu.Lock()
	defer m.runtimeMu.Unlock()
	if runtimeID == "" {
		delete(m.runtimeID, agent)
		return
	}
	m.runtimeID[agent] = runtimeID
}

func (m *LogMux) lookupRuntimeID(agent string) string {
	m.runtimeMu.RLock()
	defer m.runtimeMu.RUnlock()
	return m.runtimeID[agent]
}

// Handler returns an slog.Handler that tees every record carrying an
// "agent" attribute to WS subscribers, then delegates to the base handler.
func (m *LogMux) Handler() slog.Handler {
	return &teeHandler{mux: m, base: m.base}
}

// HandleConnection registers a WebSocket client and blocks until it
// disconnects. Intended to be called from the /logs route after upgrade.
func (m *LogMux) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	id := uuid.NewString()
	m.mu.Lock()
	m.conns[id] = conn
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.conns, id)
		m.mu.Unlock()
	}()

	// Read loop purely to detect close; clients don't send commands on this
	// stream.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (m *LogMux) publish(agent, line string, isVerbose bool) {
	frame := LogFrame{RuntimeID: m.lookupRuntimeID(agent), Line: line, IsVerbose: isVerbose}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		writeCtx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
		_ = c.Write(writeCtx, websocket.MessageText, data)
		cancel()
	}
}

// teeHandler wraps a base slog.Handler, publishing any record that carries
// an "agent" attribute (set via slog.With("agent", ...), as pkg/runtime
// does) to the LogMux before delegating.
type teeHandler struct {
	mux   *LogMux
	base  slog.Handler
	attrs []slog.Attr
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	agent := ""
	for _, a := range h.attrs {
		if a.Key == "agent" {
			agent = a.Value.String()
		}
	}
	if agent == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "agent" {
				agent = a.Value.String()
				return false
			}
			return true
		})
	}
	if agent != "" {
		h.mux.publish(agent, r.Message, r.Level < slog.LevelInfo)
	}
	return h.base.Handle(ctx, r)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &teeHandler{mux: h.mux, base: h.base.WithAttrs(attrs), attrs: merged}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{mux: h.mux, base: h.base.WithGroup(name), attrs: h.attrs}
}
