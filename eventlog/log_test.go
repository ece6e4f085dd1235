package eventlog_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"

	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/match"
)

func newTestLog(t *testing.T, capacity int64) *eventlog.Log {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return eventlog.New(client, capacity)
}

func appendN(t *testing.T, l *eventlog.Log, matchID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := l.Append(ctx, matchID, []*eventlog.Event{{
			Type:    eventlog.TypeCardPlayed,
			MatchID: matchID,
			Payload: match.Delta{
				MatchID:  matchID,
				Revision: int64(i + 2),
			},
		}})
		assert.NilError(t, err)
	}
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	l := newTestLog(t, 16)
	appendN(t, l, "m1", 5)

	events, latest, err := l.Since(context.Background(), "m1", 0)
	assert.NilError(t, err)
	assert.Equal(t, latest, int64(5))
	assert.Equal(t, len(events), 5)
	for i, ev := range events {
		assert.Equal(t, ev.EventID, int64(i+1))
	}
	assert.Check(t, !eventlog.Trimmed(0, events))
}

func TestSinceFiltersByWatermark(t *testing.T) {
	l := newTestLog(t, 16)
	appendN(t, l, "m1", 5)

	events, latest, err := l.Since(context.Background(), "m1", 3)
	assert.NilError(t, err)
	assert.Equal(t, latest, int64(5))
	assert.Equal(t, len(events), 2)
	assert.Equal(t, events[0].EventID, int64(4))
	assert.Check(t, !eventlog.Trimmed(3, events))

	// Fully caught up.
	events, latest, err = l.Since(context.Background(), "m1", 5)
	assert.NilError(t, err)
	assert.Equal(t, latest, int64(5))
	assert.Equal(t, len(events), 0)
}

func TestSinceOnEmptyLog(t *testing.T) {
	l := newTestLog(t, 16)
	events, latest, err := l.Since(context.Background(), "unknown", 0)
	assert.NilError(t, err)
	assert.Equal(t, latest, int64(0))
	assert.Equal(t, len(events), 0)
}

// TestCapTrimsOldest is the catch-up protocol's trigger: a subscriber whose
// watermark predates the cap sees a gap and must fall back to a snapshot.
func TestCapTrimsOldest(t *testing.T) {
	l := newTestLog(t, 8)
	appendN(t, l, "m1", 20)

	events, latest, err := l.Since(context.Background(), "m1", 0)
	assert.NilError(t, err)
	assert.Equal(t, latest, int64(20))
	assert.Equal(t, len(events), 8)
	assert.Equal(t, events[0].EventID, int64(13))
	assert.Check(t, eventlog.Trimmed(0, events), "gap from id 1 to 13 must be reported")

	// A watermark inside the retained range sees no gap.
	events, _, err = l.Since(context.Background(), "m1", 14)
	assert.NilError(t, err)
	assert.Check(t, !eventlog.Trimmed(14, events))
}

func TestLogsAreIndependentPerMatch(t *testing.T) {
	l := newTestLog(t, 16)
	appendN(t, l, "m1", 3)
	appendN(t, l, "m2", 1)

	_, latest, err := l.Since(context.Background(), "m2", 0)
	assert.NilError(t, err)
	assert.Equal(t, latest, int64(1))
}

func TestCursors(t *testing.T) {
	l := newTestLog(t, 16)
	ctx := context.Background()

	got, err := l.Cursor(ctx, "m1", "sub1")
	assert.NilError(t, err)
	assert.Equal(t, got, int64(0))

	assert.NilError(t, l.SaveCursor(ctx, "m1", "sub1", 7))
	got, err = l.Cursor(ctx, "m1", "sub1")
	assert.NilError(t, err)
	assert.Equal(t, got, int64(7))

	assert.NilError(t, l.DropCursor(ctx, "m1", "sub1"))
	got, err = l.Cursor(ctx, "m1", "sub1")
	assert.NilError(t, err)
	assert.Equal(t, got, int64(0))
}

func TestAppendBatchKeepsOrder(t *testing.T) {
	l := newTestLog(t, 16)
	ctx := context.Background()

	batch := make([]*eventlog.Event, 0, 3)
	for i := 0; i < 3; i++ {
		batch = append(batch, &eventlog.Event{
			Type:    eventlog.Type(fmt.Sprintf("T%d", i)),
			MatchID: "m1",
		})
	}
	assert.NilError(t, l.Append(ctx, "m1", batch))

	events, _, err := l.Since(ctx, "m1", 0)
	assert.NilError(t, err)
	assert.Equal(t, len(events), 3)
	for i, ev := range events {
		assert.Equal(t, ev.Type, eventlog.Type(fmt.Sprintf("T%d", i)))
		assert.Equal(t, ev.EventID, int64(i+1))
	}
}
