package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"

	"github.com/cardtable/tricksync/client"
	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/service"
	"github.com/cardtable/tricksync/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var serviceConfig = service.Config{
	TurnTimeout:        30 * time.Second,
	BotThinkDelay:      time.Second,
	BotFillDelay:       10 * time.Second,
	ReconnectWindow:    time.Minute,
	CompletedRetention: time.Hour,
	SweepInterval:      100 * time.Millisecond,
}

// quietConfig keeps the pump asleep so tests drive the client by hand.
var quietConfig = client.Config{
	FastPollInterval: time.Hour,
	IdlePollInterval: time.Hour,
	MaxBackoff:       time.Hour,
	ResyncInterval:   time.Hour,
	StallWindow:      time.Hour,
}

type testEnv struct {
	svc   *service.Service
	store *store.Store
	clock *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	st := store.New(rdb)
	svc := service.New(st, eventlog.New(rdb, eventlog.DefaultCap),
		serviceConfig, service.WithClock(clock.Now))
	return &testEnv{svc: svc, store: st, clock: clock}
}

// startMatch boots one client into a fresh match and lets the sweeper fill
// the remaining seats with bots, so the human at seat 0 is on turn to pass.
func startMatch(t *testing.T, env *testEnv, cfg client.Config) *client.SyncClient {
	t.Helper()
	ctx := context.Background()
	sc := client.New(env.svc, "human", "Human", match.Hearts, cfg)
	assert.NilError(t, sc.Start(ctx))
	t.Cleanup(sc.Stop)

	env.clock.Advance(serviceConfig.BotFillDelay + time.Second)
	env.svc.SweepOnce(ctx)
	return sc
}

func TestStartJoinsWaitingMatch(t *testing.T) {
	env := newTestEnv(t)
	sc := client.New(env.svc, "human", "Human", match.Hearts, quietConfig)
	assert.NilError(t, sc.Start(context.Background()))
	t.Cleanup(sc.Stop)

	assert.Equal(t, sc.Seat(), 0)
	snap := sc.Snapshot()
	assert.Equal(t, snap.Phase, match.PhaseWaiting)
	assert.Equal(t, snap.Revision, int64(1))
	assert.Equal(t, snap.Players[0].ID, "human")
}

func TestSubmitResyncsOnStaleRevision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sc := startMatch(t, env, quietConfig)

	// The bot fill advanced the server while the pump slept: the client still
	// holds the waiting-room revision.
	server, _, err := env.store.Snapshot(ctx, sc.Snapshot().MatchID)
	assert.NilError(t, err)
	assert.Equal(t, server.Phase, match.PhasePassing)
	assert.Check(t, sc.Revision() < server.Revision)

	hand := server.Hands[0]
	err = sc.PassCards(ctx, []string{hand[0].ID(), hand[1].ID(), hand[2].ID()})
	assert.NilError(t, err, "stale submit must resync and retry transparently")

	assert.Equal(t, sc.Revision(), server.Revision+1)
	snap := sc.Snapshot()
	assert.Check(t, snap.Passed[0])
	assert.Equal(t, snap.Phase, match.PhasePassing)
}

func TestSubmitPropagatesUnrecoverableErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sc := startMatch(t, env, quietConfig)

	// Playing a card during passing stays wrong after a resync.
	server, _, err := env.store.Snapshot(ctx, sc.Snapshot().MatchID)
	assert.NilError(t, err)
	err = sc.PlayCard(ctx, server.Hands[0][0].ID())
	assert.Check(t, match.Kind(err) == match.KindState, "got %v", err)

	// The resync still happened: the local view caught up.
	assert.Equal(t, sc.Revision(), server.Revision)
}

func TestSubmitBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	sc := client.New(env.svc, "human", "Human", match.Hearts, quietConfig)
	err := sc.PlayCard(context.Background(), "2C")
	assert.Check(t, match.Kind(err) == match.KindNotFound, "got %v", err)
}

func TestPumpConvergesOnServerProgress(t *testing.T) {
	env := newTestEnv(t)
	cfg := quietConfig
	cfg.FastPollInterval = 10 * time.Millisecond
	cfg.IdlePollInterval = 10 * time.Millisecond

	var mu sync.Mutex
	var seen []match.Delta
	sc := client.New(env.svc, "human", "Human", match.Hearts, cfg)
	sc.OnEvent = func(d match.Delta) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, d)
	}
	assert.NilError(t, sc.Start(context.Background()))
	t.Cleanup(sc.Stop)

	env.clock.Advance(serviceConfig.BotFillDelay + time.Second)
	env.svc.SweepOnce(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for sc.Snapshot().Phase != match.PhasePassing {
		assert.Check(t, time.Now().Before(deadline), "pump never caught up with the started match")
		time.Sleep(10 * time.Millisecond)
	}

	snap := sc.Snapshot()
	assert.Check(t, snap.Revision >= 2)
	assert.Check(t, snap.Players[1].IsBot)

	mu.Lock()
	defer mu.Unlock()
	assert.Check(t, len(seen) > 0, "OnEvent must observe the applied deltas")
	assert.Equal(t, seen[len(seen)-1].Revision, snap.Revision)
}
