// Package store implements MessageStore: the durable, per-agent FIFO queue
// that backs every AgentRuntime. It is an embedded, write-ahead-logged
// SQLite database — one file per deployment, no external server.
package store

import "time"

// State is the lifecycle state of a queued Message.
type State string

// Message states. A row moves Pending -> Processing -> Completed and never
// goes backwards, except Fail(requeue=true) and RecoverStale, which return
// a Processing row to Pending.
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
)

// Message is one row of the per-agent FIFO queue.
type Message struct {
	ID      string
	Agent   string
	Sender  string
	Content string

	// ArrivedAt is assigned by the kernel at Enqueue time, not by the bus.
	// FIFO ordering is based on this field, never on the bus's own send
	// timestamp; retention goes by ProcessingCompletedAt instead.
	ArrivedAt time.Time

	State State

	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time

	// Failed is set when a row reached Completed via Fail(requeue=false)
	// rather than a normal Complete call.
	Failed bool
}

// Stats summarizes queue depth and throughput for one agent.
type Stats struct {
	Pending          int
	Processing       int
	CompletedLast24h int
	AvgProcessMs     float64
}
