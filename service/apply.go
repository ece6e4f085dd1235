package service

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/codec"
	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/rules"
	"github.com/cardtable/tricksync/statsd"
	"github.com/cardtable/tricksync/store"
)

// casAttempts bounds the reload-and-retry loop for unconditioned writes
// (timeouts, joins). Conditioned writes never loop: a lost race already means
// the caller's expected revision is stale.
const casAttempts = 5

// AnyRevision skips the expected-revision precondition; the write still goes
// through the store's CAS and retries on conflict.
const AnyRevision int64 = -1

// errNoProgress signals a reduction that legitimately changed nothing
// (timeout before the deadline). It never escapes atomicApply.
var errNoProgress = eris.New("no progress")

// reduceFn produces the successor snapshot. It must not mutate its input.
type reduceFn func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error)

// atomicApply is the single write path: load, precondition on
// expectedRevision, reduce, bump Revision by exactly 1, CAS-write, derive and
// append events, fan out. Every mutation — player submits, bot turns,
// timeouts, joins — goes through here with no special priority.
func (svc *Service) atomicApply(ctx context.Context, matchID string, expectedRevision int64, op string, fn reduceFn) (match.Delta, error) {
	start := time.Now()
	defer statsd.EmitApplyStat(start, op)

	for attempt := 0; attempt < casAttempts; attempt++ {
		snap, version, err := svc.store.Snapshot(ctx, matchID)
		if err != nil {
			return match.Delta{}, err
		}
		if expectedRevision != AnyRevision && snap.Revision != expectedRevision {
			return match.Delta{}, eris.Wrapf(match.ErrRevisionMismatch,
				"match at revision %d, submitted against %d", snap.Revision, expectedRevision)
		}

		strat := rules.ForGameType(snap.GameType)
		nowMs := svc.nowMs()
		next, err := fn(snap, strat, nowMs)
		if eris.Is(err, errNoProgress) {
			return match.Delta{}, nil
		}
		if err != nil {
			return match.Delta{}, err
		}
		next.Revision = snap.Revision + 1

		if err := svc.store.CompareAndSet(ctx, next, version); err != nil {
			if eris.Is(err, store.ErrVersionConflict) {
				statsd.IncrConflict(op)
				if expectedRevision != AnyRevision {
					// The revision the caller saw is gone either way.
					return match.Delta{}, eris.Wrap(match.ErrRevisionMismatch, "lost write race")
				}
				continue
			}
			return match.Delta{}, err
		}

		delta := match.CreateDelta(snap, next, nowMs)
		svc.publish(ctx, snap, next, delta)
		return delta, nil
	}
	return match.Delta{}, eris.Wrapf(match.ErrRevisionMismatch,
		"match %s too contended, gave up after %d attempts", matchID, casAttempts)
}

// publish appends the transition's events, fans them out, and runs completion
// side effects. Failures here are logged, not returned: the write is already
// committed and the subscription protocol recovers missed events by resync.
func (svc *Service) publish(ctx context.Context, prev, next match.Snapshot, delta match.Delta) {
	events := deriveEvents(prev, next, delta)
	if err := svc.events.Append(ctx, next.MatchID, events); err != nil {
		svc.logger.Error().Err(err).Str("match_id", next.MatchID).Msg("event append failed")
	} else if svc.hub != nil {
		svc.hub.BroadcastEvents(next.MatchID, events)
	}
	if next.Phase == match.PhaseCompleted && prev.Phase != match.PhaseCompleted {
		svc.finishMatch(ctx, next)
	}
}

// finishMatch retires a completed match: standings, the reward hook, and key
// expiry so completed matches age out of redis. The hook's grants are
// persisted alongside the match so EndMatch replays them instead of
// re-invoking the hook and granting twice.
func (svc *Service) finishMatch(ctx context.Context, snap match.Snapshot) {
	standings := Standings(snap)
	rewards := svc.reward(snap.MatchID, standings)
	if len(rewards) > 0 {
		if bz, err := codec.Encode(rewards); err != nil {
			svc.logger.Error().Err(err).Str("match_id", snap.MatchID).Msg("reward encode failed")
		} else if err := svc.store.SaveRewards(ctx, snap.MatchID, bz, svc.cfg.CompletedRetention); err != nil {
			svc.logger.Error().Err(err).Str("match_id", snap.MatchID).Msg("reward save failed")
		}
	}
	if err := svc.store.Retire(ctx, snap.MatchID, svc.cfg.CompletedRetention); err != nil {
		svc.logger.Error().Err(err).Str("match_id", snap.MatchID).Msg("retire failed")
	}
	if err := svc.events.Expire(ctx, snap.MatchID, svc.cfg.CompletedRetention); err != nil {
		svc.logger.Error().Err(err).Str("match_id", snap.MatchID).Msg("event log expiry failed")
	}
	svc.logger.Info().Str("match_id", snap.MatchID).
		Int("winner_seat", standings[0].Seat).
		Msg("match completed")
}

// SubmitMoveRequest plays one card. ExpectedRevision is the revision the
// player's local snapshot was at; a mismatch rejects the submit so the player
// resyncs before retrying.
type SubmitMoveRequest struct {
	MatchID          string `json:"match_id"`
	PlayerID         string `json:"player_id"`
	CardID           string `json:"card_id"`
	ExpectedRevision int64  `json:"expected_revision"`
}

type SubmitPassRequest struct {
	MatchID          string   `json:"match_id"`
	PlayerID         string   `json:"player_id"`
	CardIDs          []string `json:"card_ids"`
	ExpectedRevision int64    `json:"expected_revision"`
}

type SubmitBidRequest struct {
	MatchID          string `json:"match_id"`
	PlayerID         string `json:"player_id"`
	Bid              int    `json:"bid"`
	ExpectedRevision int64  `json:"expected_revision"`
}

// SubmitMove plays a card for the requesting player's seat.
func (svc *Service) SubmitMove(ctx context.Context, req SubmitMoveRequest) (match.Delta, error) {
	return svc.atomicApplyForPlayer(ctx, req.MatchID, req.PlayerID, req.ExpectedRevision, "move",
		func(s match.Snapshot, strat match.Strategy, seat int, nowMs int64) (match.Snapshot, error) {
			return match.ApplyMove(s, seat, req.CardID, strat, nowMs, svc.timeoutMs())
		})
}

// SubmitPass records the player's 3-card passing selection.
func (svc *Service) SubmitPass(ctx context.Context, req SubmitPassRequest) (match.Delta, error) {
	return svc.atomicApplyForPlayer(ctx, req.MatchID, req.PlayerID, req.ExpectedRevision, "pass",
		func(s match.Snapshot, strat match.Strategy, seat int, nowMs int64) (match.Snapshot, error) {
			return match.ApplyPass(s, seat, req.CardIDs, strat, nowMs, svc.timeoutMs())
		})
}

// SubmitBid records the player's bid.
func (svc *Service) SubmitBid(ctx context.Context, req SubmitBidRequest) (match.Delta, error) {
	return svc.atomicApplyForPlayer(ctx, req.MatchID, req.PlayerID, req.ExpectedRevision, "bid",
		func(s match.Snapshot, strat match.Strategy, seat int, nowMs int64) (match.Snapshot, error) {
			return match.ApplyBid(s, seat, req.Bid, nowMs, svc.timeoutMs())
		})
}

// atomicApplyForPlayer resolves the player's seat inside the CAS loop so the
// seat lookup and the reduction see the same snapshot.
func (svc *Service) atomicApplyForPlayer(
	ctx context.Context, matchID, playerID string, expectedRevision int64, op string,
	fn func(s match.Snapshot, strat match.Strategy, seat int, nowMs int64) (match.Snapshot, error),
) (match.Delta, error) {
	delta, err := svc.atomicApply(ctx, matchID, expectedRevision, op,
		func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
			seat := s.SeatOf(playerID)
			if seat < 0 {
				return s, eris.Wrapf(match.ErrMatchNotFound, "player %s is not seated in %s", playerID, matchID)
			}
			return fn(s, strat, seat, nowMs)
		})
	if err == nil && delta.Revision > 0 {
		svc.logger.Debug().Str("match_id", matchID).Str("op", op).
			Int64("revision", delta.Revision).Msg("applied")
	}
	return delta, err
}

// TimeoutMove forces progress for the current turn-holder once its deadline
// has lapsed. Before the deadline it is a no-op returning a zero delta. The
// returned delta's Revision is 0 when nothing happened.
func (svc *Service) TimeoutMove(ctx context.Context, matchID string) (match.Delta, error) {
	return svc.atomicApply(ctx, matchID, AnyRevision, "timeout",
		func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
			next, changed, err := match.ApplyTimeout(s, strat, nowMs, svc.timeoutMs())
			if err != nil {
				return s, err
			}
			if !changed {
				return s, errNoProgress
			}
			return next, nil
		})
}

// Standings ranks the seats of a snapshot. Hearts counts penalty points so
// low score ranks first; Spades and Callbreak rank high score first. Ties
// share the better rank order arbitrarily by seat.
func Standings(s match.Snapshot) []Standing {
	out := make([]Standing, 0, match.NumSeats)
	for seat := 0; seat < match.NumSeats; seat++ {
		out = append(out, Standing{
			Seat:     seat,
			PlayerID: s.Players[seat].ID,
			Name:     s.Players[seat].Name,
			IsBot:    s.Players[seat].IsBot,
			Score:    s.Scores[seat],
		})
	}
	lowWins := s.GameType == match.Hearts
	sort.SliceStable(out, func(i, j int) bool {
		if lowWins {
			return out[i].Score < out[j].Score
		}
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
