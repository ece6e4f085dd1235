package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"gotest.tools/v3/assert"

	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.New(client)
}

func testSnapshot(matchID string) match.Snapshot {
	return match.NewSnapshot(matchID, match.Config{
		GameType:      match.Hearts,
		Seed:          1,
		NowMs:         1_700_000_000_000,
		TurnTimeoutMs: 30_000,
	})
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	snap := testSnapshot("m1")

	assert.NilError(t, s.Create(ctx, snap))

	loaded, version, err := s.Snapshot(ctx, "m1")
	assert.NilError(t, err)
	assert.Equal(t, version, int64(1))
	assert.DeepEqual(t, loaded, snap)

	active, err := s.ActiveMatches(ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, active, []string{"m1"})
}

func TestCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	snap := testSnapshot("m1")

	assert.NilError(t, s.Create(ctx, snap))
	err := s.Create(ctx, snap)
	assert.Check(t, eris.Is(err, store.ErrVersionConflict), "got %v", err)
}

func TestSnapshotNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Snapshot(context.Background(), "nope")
	assert.Check(t, match.Kind(err) == match.KindNotFound, "got %v", err)
}

// TestCompareAndSetExclusivity is the write-path safety property: of two
// writers holding the same version token, exactly one commits.
func TestCompareAndSetExclusivity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := testSnapshot("m1")
	assert.NilError(t, s.Create(ctx, base))

	loaded, version, err := s.Snapshot(ctx, "m1")
	assert.NilError(t, err)

	first := loaded.Clone()
	first.Revision++
	assert.NilError(t, s.CompareAndSet(ctx, first, version))

	second := loaded.Clone()
	second.Revision++
	second.TurnIndex = (second.TurnIndex + 1) % match.NumSeats
	err = s.CompareAndSet(ctx, second, version)
	assert.Check(t, eris.Is(err, store.ErrVersionConflict), "second writer must lose: %v", err)

	// The committed state is the first writer's, at version 2.
	current, version, err := s.Snapshot(ctx, "m1")
	assert.NilError(t, err)
	assert.Equal(t, version, int64(2))
	assert.DeepEqual(t, current, first)
}

// TestConcurrentWritersLoseNoUpdates hammers the load-modify-CAS cycle from
// several goroutines. Every successful CompareAndSet must stay visible in the
// final state: a snapshot read that paired stale state with a fresh version
// token would let a later writer silently erase a committed increment.
func TestConcurrentWritersLoseNoUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.NilError(t, s.Create(ctx, testSnapshot("m1")))

	const writers = 4
	const perWriter = 25
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; {
				snap, version, err := s.Snapshot(ctx, "m1")
				if err != nil {
					errs[w] = err
					return
				}
				next := snap.Clone()
				next.Scores[0]++
				next.Revision++
				err = s.CompareAndSet(ctx, next, version)
				if eris.Is(err, store.ErrVersionConflict) {
					continue
				}
				if err != nil {
					errs[w] = err
					return
				}
				i++
			}
		}()
	}
	wg.Wait()
	for w, err := range errs {
		assert.NilError(t, err, "writer %d", w)
	}

	final, version, err := s.Snapshot(ctx, "m1")
	assert.NilError(t, err)
	assert.Equal(t, final.Scores[0], writers*perWriter)
	assert.Equal(t, version, int64(writers*perWriter+1))
	assert.Equal(t, final.Revision, int64(writers*perWriter)+1)
}

func TestCompareAndSetMissingMatch(t *testing.T) {
	s := newTestStore(t)
	err := s.CompareAndSet(context.Background(), testSnapshot("ghost"), 1)
	assert.Check(t, match.Kind(err) == match.KindNotFound, "got %v", err)
}

func TestRetireRemovesFromActiveSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.NilError(t, s.Create(ctx, testSnapshot("m1")))
	assert.NilError(t, s.Retire(ctx, "m1", time.Hour))

	active, err := s.ActiveMatches(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(active), 0)

	// The snapshot itself lingers for the retention window.
	_, _, err = s.Snapshot(ctx, "m1")
	assert.NilError(t, err)
}

func TestWaitingSlotCAS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NilError(t, s.SetWaiting(ctx, "HEARTS", "m1"))
	err := s.SetWaiting(ctx, "HEARTS", "m2")
	assert.Check(t, eris.Is(err, store.ErrVersionConflict), "slot must be exclusive: %v", err)

	matchID, err := s.Waiting(ctx, "HEARTS")
	assert.NilError(t, err)
	assert.Equal(t, matchID, "m1")

	// Clearing with the wrong match id leaves the slot alone.
	assert.NilError(t, s.ClearWaiting(ctx, "HEARTS", "m2"))
	matchID, err = s.Waiting(ctx, "HEARTS")
	assert.NilError(t, err)
	assert.Equal(t, matchID, "m1")

	assert.NilError(t, s.ClearWaiting(ctx, "HEARTS", "m1"))
	matchID, err = s.Waiting(ctx, "HEARTS")
	assert.NilError(t, err)
	assert.Equal(t, matchID, "")

	// Game types hold independent slots.
	assert.NilError(t, s.SetWaiting(ctx, "SPADES", "m3"))
	matchID, err = s.Waiting(ctx, "HEARTS")
	assert.NilError(t, err)
	assert.Equal(t, matchID, "")
}

func TestDisconnectMarkers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	assert.NilError(t, s.MarkDisconnected(ctx, "m1", "p1", time.Minute))
	matchID, err := s.DisconnectMarker(ctx, "p1")
	assert.NilError(t, err)
	assert.Equal(t, matchID, "m1")

	assert.NilError(t, s.ClearDisconnect(ctx, "p1"))
	matchID, err = s.DisconnectMarker(ctx, "p1")
	assert.NilError(t, err)
	assert.Equal(t, matchID, "")
}
