// Package client is the player-side orchestrator: it finds a match, keeps a
// local snapshot converged on the authoritative one through the subscription
// protocol, and submits actions conditioned on the revision it has seen.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/service"
)

// MatchService is the surface the client drives. *service.Service satisfies
// it directly for in-process use; an HTTP adapter satisfies it over the wire.
type MatchService interface {
	FindMatch(ctx context.Context, req service.FindMatchRequest) (service.FindMatchReply, error)
	SubmitMove(ctx context.Context, req service.SubmitMoveRequest) (match.Delta, error)
	SubmitPass(ctx context.Context, req service.SubmitPassRequest) (match.Delta, error)
	SubmitBid(ctx context.Context, req service.SubmitBidRequest) (match.Delta, error)
	Subscribe(ctx context.Context, req service.SubscribeRequest) (service.SubscribeReply, error)
	Unsubscribe(ctx context.Context, matchID, subscriptionID string) error
	GetSnapshot(ctx context.Context, matchID string) (match.Snapshot, match.Delta, error)
}

// Config tunes the event pump. Zero values fall back to defaults.
type Config struct {
	// FastPollInterval is used while events are flowing.
	FastPollInterval time.Duration
	// IdlePollInterval is used after a quiet poll.
	IdlePollInterval time.Duration
	// MaxBackoff caps the poll interval growth on repeated errors.
	MaxBackoff time.Duration
	// ResyncInterval is the cadence of the full-resync safety net.
	ResyncInterval time.Duration
	// StallWindow is how long a PLAYING match may sit without revision
	// progress before the client forces a fresh subscription.
	StallWindow time.Duration
}

func defaultClientConfig() Config {
	return Config{
		FastPollInterval: 250 * time.Millisecond,
		IdlePollInterval: 2 * time.Second,
		MaxBackoff:       15 * time.Second,
		ResyncInterval:   30 * time.Second,
		StallWindow:      45 * time.Second,
	}
}

func (c Config) normalize() Config {
	def := defaultClientConfig()
	if c.FastPollInterval <= 0 {
		c.FastPollInterval = def.FastPollInterval
	}
	if c.IdlePollInterval <= 0 {
		c.IdlePollInterval = def.IdlePollInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.ResyncInterval <= 0 {
		c.ResyncInterval = def.ResyncInterval
	}
	if c.StallWindow <= 0 {
		c.StallWindow = def.StallWindow
	}
	return c
}

// SyncClient keeps one player's view of one match. The local snapshot only
// ever moves forward: every inbound delta goes through match.ApplyDelta,
// which discards stale and duplicate revisions.
type SyncClient struct {
	svc MatchService
	cfg Config

	playerID   string
	playerName string
	gameType   match.GameType
	autoMove   bool

	mu           sync.RWMutex
	snap         match.Snapshot
	seat         int
	subID        string
	lastEventID  int64
	lastProgress time.Time

	cancel context.CancelFunc
	done   chan struct{}

	// OnEvent, when set before Start, observes every applied delta.
	OnEvent func(d match.Delta)

	logger zerolog.Logger
}

func New(svc MatchService, playerID, playerName string, gameType match.GameType, cfg Config) *SyncClient {
	return &SyncClient{
		svc:        svc,
		cfg:        cfg.normalize(),
		playerID:   playerID,
		playerName: playerName,
		gameType:   gameType,
		seat:       -1,
		logger:     log.Logger.With().Str("component", "sync_client").Str("player_id", playerID).Logger(),
	}
}

// WithAutoMove opts the matches this client creates into server-forced moves
// on timeout.
func (sc *SyncClient) WithAutoMove() *SyncClient {
	sc.autoMove = true
	return sc
}

// Start finds or creates a match and launches the event pump. It is not
// restartable after Stop.
func (sc *SyncClient) Start(ctx context.Context) error {
	reply, err := sc.svc.FindMatch(ctx, service.FindMatchRequest{
		GameType:   sc.gameType,
		PlayerID:   sc.playerID,
		PlayerName: sc.playerName,
		AutoMove:   sc.autoMove,
	})
	if err != nil {
		return err
	}
	sc.mu.Lock()
	sc.snap = reply.Snapshot
	sc.seat = reply.Seat
	sc.lastProgress = time.Now()
	sc.mu.Unlock()

	pumpCtx, cancel := context.WithCancel(ctx)
	sc.cancel = cancel
	sc.done = make(chan struct{})
	go sc.pump(pumpCtx)
	return nil
}

// Stop cancels the pump and releases the subscription.
func (sc *SyncClient) Stop() {
	if sc.cancel == nil {
		return
	}
	sc.cancel()
	<-sc.done

	sc.mu.RLock()
	matchID, subID := sc.snap.MatchID, sc.subID
	sc.mu.RUnlock()
	if subID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sc.svc.Unsubscribe(ctx, matchID, subID); err != nil {
			sc.logger.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
}

// Snapshot returns a copy of the client's current view.
func (sc *SyncClient) Snapshot() match.Snapshot {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.snap.Clone()
}

// Seat returns the seat this player occupies.
func (sc *SyncClient) Seat() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.seat
}

// Revision returns the revision the local view has converged to.
func (sc *SyncClient) Revision() int64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.snap.Revision
}

// PlayCard submits a card play conditioned on the locally known revision,
// with one automatic resync-and-retry if that revision turned out stale.
func (sc *SyncClient) PlayCard(ctx context.Context, cardID string) error {
	return sc.submit(ctx, func(matchID string, revision int64) (match.Delta, error) {
		return sc.svc.SubmitMove(ctx, service.SubmitMoveRequest{
			MatchID:          matchID,
			PlayerID:         sc.playerID,
			CardID:           cardID,
			ExpectedRevision: revision,
		})
	})
}

// PassCards submits the 3-card passing selection.
func (sc *SyncClient) PassCards(ctx context.Context, cardIDs []string) error {
	return sc.submit(ctx, func(matchID string, revision int64) (match.Delta, error) {
		return sc.svc.SubmitPass(ctx, service.SubmitPassRequest{
			MatchID:          matchID,
			PlayerID:         sc.playerID,
			CardIDs:          cardIDs,
			ExpectedRevision: revision,
		})
	})
}

// PlaceBid submits a bid.
func (sc *SyncClient) PlaceBid(ctx context.Context, bid int) error {
	return sc.submit(ctx, func(matchID string, revision int64) (match.Delta, error) {
		return sc.svc.SubmitBid(ctx, service.SubmitBidRequest{
			MatchID:          matchID,
			PlayerID:         sc.playerID,
			Bid:              bid,
			ExpectedRevision: revision,
		})
	})
}

// submit runs one conditioned mutation. Recoverable errors (revision or
// phase/turn mismatch) trigger exactly one resync and retry; validation and
// not-found errors propagate untouched since retrying cannot help.
func (sc *SyncClient) submit(ctx context.Context, op func(matchID string, revision int64) (match.Delta, error)) error {
	sc.mu.RLock()
	matchID, revision := sc.snap.MatchID, sc.snap.Revision
	sc.mu.RUnlock()
	if matchID == "" {
		return eris.Wrap(match.ErrMatchNotFound, "client not started")
	}

	delta, err := op(matchID, revision)
	if err != nil && match.Recoverable(err) {
		if rerr := sc.resync(ctx); rerr != nil {
			return rerr
		}
		sc.mu.RLock()
		revision = sc.snap.Revision
		sc.mu.RUnlock()
		delta, err = op(matchID, revision)
	}
	if err != nil {
		return err
	}
	sc.applyDelta(delta)
	return nil
}

// applyDelta merges one delta into the local view, never regressing it.
func (sc *SyncClient) applyDelta(d match.Delta) {
	if d.Revision == 0 {
		return
	}
	sc.mu.Lock()
	before := sc.snap.Revision
	sc.snap = match.ApplyDelta(sc.snap, d)
	advanced := sc.snap.Revision > before
	if advanced {
		sc.lastProgress = time.Now()
	}
	cb := sc.OnEvent
	sc.mu.Unlock()
	if advanced && cb != nil {
		cb(d)
	}
}

// resync replaces the local view with a fresh authoritative snapshot and
// abandons the current subscription cursor; the next poll starts clean.
func (sc *SyncClient) resync(ctx context.Context) error {
	sc.mu.RLock()
	matchID := sc.snap.MatchID
	sc.mu.RUnlock()

	snap, _, err := sc.svc.GetSnapshot(ctx, matchID)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	if snap.Revision >= sc.snap.Revision {
		sc.snap = snap
		sc.lastProgress = time.Now()
	}
	sc.subID = ""
	sc.lastEventID = 0
	sc.mu.Unlock()
	sc.logger.Debug().Int64("revision", snap.Revision).Msg("resynced")
	return nil
}
