package store

import "errors"

// Sentinel errors returned by MessageStore operations. Callers should use
// errors.Is rather than comparing strings.
var (
	// ErrNotFound indicates the requested (id, agent) row does not exist,
	// or is not in the state the caller expected (e.g. Complete on a row
	// that isn't Processing).
	ErrNotFound = errors.New("store: message not found")

	// ErrCorrupt indicates the database file failed an integrity check or
	// returned a decode error the store cannot recover from. Fatal: the
	// caller must surface this to the control plane and stop.
	ErrCorrupt = errors.New("store: database corrupt")

	// ErrBusy indicates a transient lock contention error (SQLITE_BUSY).
	// Transient: the caller should retry with backoff.
	ErrBusy = errors.New("store: database busy")

	// ErrDiskFull indicates the underlying filesystem rejected a write for
	// lack of space. Transient for reads, fatal for writes.
	ErrDiskFull = errors.New("store: disk full")
)
