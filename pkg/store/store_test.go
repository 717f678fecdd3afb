package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "message_backlog.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hello")
	require.NoError(t, err)
	require.Equal(t, Accepted, res)

	for i := 0; i < 3; i++ {
		res, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hello")
		require.NoError(t, err)
		require.Equal(t, Duplicate, res)
	}

	stats, err := s.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
}

func TestEnqueueSameIDDifferentAgentIsIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hello")
	require.NoError(t, err)
	require.Equal(t, Accepted, res)

	res, err = s.Enqueue(ctx, "m1", "beta", "bob", "hello")
	require.NoError(t, err)
	require.Equal(t, Accepted, res)
}

func TestClaimIsFIFOByArrivalThenID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		_, err := s.Enqueue(ctx, id, "alpha", "bob", "content-"+id)
		require.NoError(t, err)
	}

	msg, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "c", msg.ID)
	require.Equal(t, StateProcessing, msg.State)
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	msg, err := s.Claim(context.Background(), "alpha")
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestAtMostOneProcessingPerAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		_, err := s.Enqueue(ctx, id, "alpha", "bob", "hi")
		require.NoError(t, err)
	}

	first, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, first)

	// A second claim attempt while the first is Processing must not return
	// a second Processing row for the same agent.
	second, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.Nil(t, second)

	stats, err := s.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processing)
}

func TestCompleteRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hi")
	require.NoError(t, err)
	msg, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, msg.ID, "alpha"))

	stats, err := s.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Pending)
	require.Equal(t, 0, stats.Processing)
	require.Equal(t, 1, stats.CompletedLast24h)
}

func TestFailRequeueKeepsHeadOfQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hi")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "m2", "alpha", "bob", "hi")
	require.NoError(t, err)

	msg, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)

	require.NoError(t, s.Fail(ctx, msg.ID, "alpha", true))

	again, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, "m1", again.ID, "requeued message should keep its original arrival order")
}

func TestFailNoRequeueMarksCompletedWithFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hi")
	require.NoError(t, err)
	msg, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, s.Fail(ctx, msg.ID, "alpha", false))

	hist, err := s.History(ctx, "alpha", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.True(t, hist[0].Failed)
}

func TestPurgeOnlyRemovesPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hi")
	require.NoError(t, err)
	msg, err := s.Claim(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, msg.ID, "alpha"))

	_, err = s.Enqueue(ctx, "m2", "alpha", "bob", "hi")
	require.NoError(t, err)

	n, err := s.Purge(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	stats, err := s.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Pending)
	require.Equal(t, 1, stats.CompletedLast24h)
}

func TestRecoverStaleRequeuesOldProcessingRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hi")
	require.NoError(t, err)
	_, err = s.Claim(ctx, "alpha")
	require.NoError(t, err)

	// Force the started_at stamp into the past so it looks stale without
	// needing the test to sleep for maxAge.
	_, err = s.db.ExecContext(ctx, `UPDATE messages SET started_at = ? WHERE id = 'm1'`,
		time.Now().Add(-10*time.Minute).UnixMilli())
	require.NoError(t, err)

	n, err := s.RecoverStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	stats, err := s.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 0, stats.Processing)
}

func TestPeekNextDoesNotMutateState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, "m1", "alpha", "bob", "hi")
	require.NoError(t, err)

	peeked, err := s.PeekNext(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, StatePending, peeked.State)

	stats, err := s.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)
}
