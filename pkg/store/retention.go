package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionTTL is how long a Completed row is kept as a dedup/audit
// tombstone before the sweep purges it.
const RetentionTTL = 7 * 24 * time.Hour

// sweepBatchSize bounds a single delete statement so the sweep never holds
// the writer lock long enough to starve Enqueue/Claim.
const sweepBatchSize = 1000

// Retention runs the periodic Completed-row sweep on a cron schedule.
type Retention struct {
	store *Store
	c     *cron.Cron
}

// NewRetention builds a Retention sweeper for store. schedule is a standard
// five-field cron expression or a "@every" descriptor (default "@every 1h").
func NewRetention(s *Store, schedule string) *Retention {
	if schedule == "" {
		schedule = "@every 1h"
	}
	r := &Retention{store: s, c: cron.New()}
	if _, err := r.c.AddFunc(schedule, r.sweepOnce); err != nil {
		// Any schedule cron cannot parse panics here, the built-in default
		// and an operator-supplied one alike; the config Validator does not
		// check this field.
		panic(fmt.Sprintf("store: invalid retention schedule %q: %v", schedule, err))
	}
	return r
}

// Start begins the cron runner and blocks until ctx is cancelled.
func (r *Retention) Start(ctx context.Context) {
	r.c.Start()
	slog.Info("retention sweep started")
	<-ctx.Done()
	r.c.Stop()
	slog.Info("retention sweep stopped")
}

func (r *Retention) sweepOnce() {
	ctx := context.Background()
	total := 0
	for {
		n, err := r.sweepBatch(ctx)
		if err != nil {
			slog.Warn("retention sweep failed", "error", err)
			return
		}
		total += int(n)
		if n < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		slog.Info("retention sweep complete", "rows_purged", total)
	}
}

func (r *Retention) sweepBatch(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-RetentionTTL).UnixMilli()
	res, err := r.store.db.ExecContext(ctx, `
		DELETE FROM messages WHERE (id, agent) IN (
			SELECT id, agent FROM messages
			WHERE state = ? AND completed_at IS NOT NULL AND completed_at < ?
			LIMIT ?
		) AND state = ?
	`, string(StateCompleted), cutoff, sweepBatchSize, string(StateCompleted))
	if err != nil {
		return 0, classifyWriteErr(err)
	}
	return res.RowsAffected()
}
