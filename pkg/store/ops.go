package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EnqueueResult reports whether Enqueue accepted a new row or found an
// existing (id, agent) pair already present.
type EnqueueResult int

const (
	Accepted EnqueueResult = iota
	Duplicate
)

// Enqueue inserts a new Pending row for (id, agent), or returns Duplicate if
// that pair already exists. Idempotent: calling it K times for the same
// (id, agent) accepts exactly once.
func (s *Store) Enqueue(ctx context.Context, id, agent, sender, content string) (EnqueueResult, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, agent, sender, content, arrived_at, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, agent) DO NOTHING
	`, id, agent, sender, content, now.UnixMilli(), string(StatePending))
	if err != nil {
		return Duplicate, classifyWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Duplicate, fmt.Errorf("store: enqueue rows affected: %w", err)
	}
	if n == 0 {
		return Duplicate, nil
	}
	return Accepted, nil
}

// PeekNext returns the oldest Pending row for agent without mutating state,
// or (nil, nil) if the queue is empty.
func (s *Store) PeekNext(ctx context.Context, agent string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent, sender, content, arrived_at, state, started_at, completed_at, failed
		FROM messages
		WHERE agent = ? AND state = ?
		ORDER BY arrived_at ASC, id ASC
		LIMIT 1
	`, agent, string(StatePending))
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: peek next: %w", err)
	}
	return msg, nil
}

// PeekBatch returns up to n oldest Pending rows for agent without mutating
// state. Used by the processor to gather batch context after a Claim: these
// rows are read-only until the caller later Completes them alongside the
// claimed trigger.
func (s *Store) PeekBatch(ctx context.Context, agent string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, sender, content, arrived_at, state, started_at, completed_at, failed
		FROM messages
		WHERE agent = ? AND state = ?
		ORDER BY arrived_at ASC, id ASC
		LIMIT ?
	`, agent, string(StatePending), n)
	if err != nil {
		return nil, fmt.Errorf("store: peek batch: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: peek batch scan: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// Claim atomically selects the oldest Pending row for agent and transitions
// it to Processing, returning it. It returns (nil, nil) while the agent
// already has a Processing row, so at most one row per agent is ever in
// Processing. The select and the update run in one transaction, and the
// UPDATE only matches a row that is still Pending: if two callers race
// (the spec only mandates one processor, but the store must stay correct
// even if two run by mistake), only one of them updates the row and the
// other sees zero rows affected.
func (s *Store) Claim(ctx context.Context, agent string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: claim begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inFlight int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE agent = ? AND state = ?
	`, agent, string(StateProcessing)).Scan(&inFlight); err != nil {
		return nil, fmt.Errorf("store: claim in-flight check: %w", err)
	}
	if inFlight > 0 {
		return nil, nil
	}

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM messages
		WHERE agent = ? AND state = ?
		ORDER BY arrived_at ASC, id ASC
		LIMIT 1
	`, agent, string(StatePending)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim select: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		UPDATE messages SET state = ?, started_at = ?
		WHERE id = ? AND agent = ? AND state = ?
	`, string(StateProcessing), now, id, agent, string(StatePending))
	if err != nil {
		return nil, classifyWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: claim rows affected: %w", err)
	}
	if n == 0 {
		// Lost the race to a concurrent claimer; caller treats this like
		// an empty queue on this pass.
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, agent, sender, content, arrived_at, state, started_at, completed_at, failed
		FROM messages WHERE id = ? AND agent = ?
	`, id, agent)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("store: claim reload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: claim commit: %w", err)
	}
	return msg, nil
}

// Complete transitions a Processing row to Completed.
func (s *Store) Complete(ctx context.Context, id, agent string) error {
	return s.completeAs(ctx, id, agent, false)
}

func (s *Store) completeAs(ctx context.Context, id, agent string, failed bool) error {
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET state = ?, completed_at = ?, failed = ?
		WHERE id = ? AND agent = ? AND state = ?
	`, string(StateCompleted), now, boolToInt(failed), id, agent, string(StateProcessing))
	if err != nil {
		return classifyWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: complete rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail transitions a Processing row. If requeue, it goes back to Pending
// keeping its original arrived_at (so it returns to the head of the
// queue). Otherwise it is Completed with the failure marker set.
func (s *Store) Fail(ctx context.Context, id, agent string, requeue bool) error {
	if !requeue {
		return s.completeAs(ctx, id, agent, true)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET state = ?, started_at = NULL
		WHERE id = ? AND agent = ? AND state = ?
	`, string(StatePending), id, agent, string(StateProcessing))
	if err != nil {
		return classifyWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: fail rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge deletes all Pending rows for agent. Used by backlog-reset.
func (s *Store) Purge(ctx context.Context, agent string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE agent = ? AND state = ?
	`, agent, string(StatePending))
	if err != nil {
		return 0, classifyWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: purge rows affected: %w", err)
	}
	return n, nil
}

// RecoverStale requeues rows stuck in Processing older than maxAge. Called
// once at process start so a crash mid-claim doesn't strand a message.
func (s *Store) RecoverStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET state = ?, started_at = NULL
		WHERE state = ? AND started_at IS NOT NULL AND started_at < ?
	`, string(StatePending), string(StateProcessing), cutoff)
	if err != nil {
		return 0, classifyWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: recover stale rows affected: %w", err)
	}
	return n, nil
}

// History returns the most recent k Completed messages for agent, most
// recently completed first. Always read fresh from disk — the kernel
// keeps no in-memory conversation buffer (see the stateless re-fetch
// decision in DESIGN.md).
func (s *Store) History(ctx context.Context, agent string, k int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, sender, content, arrived_at, state, started_at, completed_at, failed
		FROM messages
		WHERE agent = ? AND state = ?
		ORDER BY completed_at DESC
		LIMIT ?
	`, agent, string(StateCompleted), k)
	if err != nil {
		return nil, fmt.Errorf("store: history query: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// Stats summarizes queue depth and throughput for agent.
func (s *Store) Stats(ctx context.Context, agent string) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE agent = ? AND state = ?),
			(SELECT COUNT(*) FROM messages WHERE agent = ? AND state = ?),
			(SELECT COUNT(*) FROM messages WHERE agent = ? AND state = ? AND completed_at >= ?),
			(SELECT COALESCE(AVG(completed_at - started_at), 0) FROM messages
				WHERE agent = ? AND state = ? AND started_at IS NOT NULL AND completed_at IS NOT NULL)
	`,
		agent, string(StatePending),
		agent, string(StateProcessing),
		agent, string(StateCompleted), time.Now().Add(-24*time.Hour).UnixMilli(),
		agent, string(StateCompleted),
	)
	if err := row.Scan(&st.Pending, &st.Processing, &st.CompletedLast24h, &st.AvgProcessMs); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	var state string
	var started, completed sql.NullInt64
	var arrivedAt int64
	var failedInt int
	if err := row.Scan(&m.ID, &m.Agent, &m.Sender, &m.Content, &arrivedAt, &state, &started, &completed, &failedInt); err != nil {
		return nil, err
	}
	m.ArrivedAt = time.UnixMilli(arrivedAt)
	m.State = State(state)
	m.ProcessingStartedAt = timePtrFromNull(started)
	m.ProcessingCompletedAt = timePtrFromNull(completed)
	m.Failed = failedInt != 0
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// classifyWriteErr maps a raw database/sql error into the kernel's error
// taxonomy so callers can distinguish transient from fatal failures.
func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "database is locked", "SQLITE_BUSY", "busy"):
		return fmt.Errorf("%w: %v", ErrBusy, err)
	case containsAny(msg, "disk I/O error", "disk full", "SQLITE_FULL"):
		return fmt.Errorf("%w: %v", ErrDiskFull, err)
	case containsAny(msg, "malformed", "corrupt", "SQLITE_CORRUPT"):
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	default:
		return fmt.Errorf("store: write: %w", err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
