package service

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/statsd"
)

// StartSweeper runs the sweep loop until ctx is cancelled. One scheduler
// drives every time-based transition: turn timeouts, bot turns, bot-filling
// stale WAITING matches, and handing lapsed disconnected seats to bots.
func (svc *Service) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(svc.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				svc.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce visits every active match once. Exported so tests can step the
// scheduler deterministically instead of racing the ticker.
func (svc *Service) SweepOnce(ctx context.Context) {
	start := time.Now()
	defer statsd.EmitSweepStat(start, "pass")

	ids, err := svc.store.ActiveMatches(ctx)
	if err != nil {
		svc.logger.Error().Err(err).Msg("active match scan failed")
		return
	}
	for _, matchID := range ids {
		if err := svc.sweepMatch(ctx, matchID); err != nil {
			// Conflicts just mean someone else made progress first.
			if match.Kind(err) == match.KindConcurrency {
				continue
			}
			svc.logger.Error().Err(err).Str("match_id", matchID).Msg("sweep failed")
		}
	}
}

func (svc *Service) sweepMatch(ctx context.Context, matchID string) error {
	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		// Retired between scan and load.
		if match.Kind(err) == match.KindNotFound {
			return nil
		}
		return err
	}
	nowMs := svc.nowMs()

	if snap.Phase == match.PhaseWaiting {
		if nowMs-snap.CreatedAtMs >= svc.cfg.BotFillDelay.Milliseconds() {
			return svc.fillWithBots(ctx, matchID)
		}
		return nil
	}
	if !snap.Active() {
		return nil
	}

	if err := svc.expireDisconnects(ctx, &snap, nowMs); err != nil {
		return err
	}

	seat := snap.TurnIndex
	if seat < 0 {
		return nil
	}
	turnStartMs := snap.TurnDeadlineMs - svc.timeoutMs()

	if snap.Players[seat].IsBot {
		if nowMs-turnStartMs >= svc.cfg.BotThinkDelay.Milliseconds() {
			return svc.stepBot(ctx, snap, seat)
		}
		return nil
	}
	// Humans are forced only past the deadline, and only when the match
	// opted into auto-move or the seat has dropped its connection.
	if nowMs > snap.TurnDeadlineMs && (snap.AutoMove || !snap.Players[seat].Connected) {
		_, err := svc.TimeoutMove(ctx, matchID)
		return err
	}
	return nil
}

// fillWithBots tops a stale WAITING match up to four seats and starts it.
func (svc *Service) fillWithBots(ctx context.Context, matchID string) error {
	_, err := svc.atomicApply(ctx, matchID, AnyRevision, "bot_fill",
		func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
			if s.Phase != match.PhaseWaiting {
				return s, errNoProgress
			}
			next := s.Clone()
			for seat := 0; seat < match.NumSeats; seat++ {
				if next.Players[seat].ID == "" {
					next.Players[seat] = botPlayer(seat)
				}
			}
			return match.StartRound(next, nowMs, svc.timeoutMs()), nil
		})
	if err != nil {
		return err
	}
	snap, _, loadErr := svc.store.Snapshot(ctx, matchID)
	if loadErr == nil {
		_ = svc.store.ClearWaiting(ctx, slotKey(snap.GameType, snap.Region), matchID)
	}
	svc.logger.Info().Str("match_id", matchID).Msg("stale waiting match bot-filled")
	return nil
}

// expireDisconnects hands seats whose reconnect window lapsed over to bots.
// The snapshot pointer is refreshed when a conversion happens so the caller's
// turn decision sees the updated seats.
func (svc *Service) expireDisconnects(ctx context.Context, snap *match.Snapshot, nowMs int64) error {
	lapsed := false
	for seat := 0; seat < match.NumSeats; seat++ {
		p := snap.Players[seat]
		if !p.IsBot && !p.Connected && p.DisconnectedAtMs > 0 &&
			nowMs-p.DisconnectedAtMs >= svc.cfg.ReconnectWindow.Milliseconds() {
			lapsed = true
			break
		}
	}
	if !lapsed {
		return nil
	}
	_, err := svc.atomicApply(ctx, snap.MatchID, AnyRevision, "bot_takeover",
		func(s match.Snapshot, strat match.Strategy, now int64) (match.Snapshot, error) {
			next := s.Clone()
			converted := false
			for seat := 0; seat < match.NumSeats; seat++ {
				p := next.Players[seat]
				if !p.IsBot && !p.Connected && p.DisconnectedAtMs > 0 &&
					now-p.DisconnectedAtMs >= svc.cfg.ReconnectWindow.Milliseconds() {
					next.Players[seat] = botPlayer(seat)
					converted = true
				}
			}
			if !converted {
				return s, errNoProgress
			}
			return next, nil
		})
	if err != nil {
		return err
	}
	fresh, _, err := svc.store.Snapshot(ctx, snap.MatchID)
	if err != nil {
		return err
	}
	*snap = fresh
	return nil
}

// stepBot submits the bot's action conditioned on the revision the sweep
// observed: if anything moved since, the submit fails with a revision
// mismatch and the next sweep re-evaluates from fresh state.
func (svc *Service) stepBot(ctx context.Context, snap match.Snapshot, seat int) error {
	var err error
	switch snap.Phase {
	case match.PhasePlaying:
		_, err = svc.atomicApply(ctx, snap.MatchID, snap.Revision, "bot_move",
			func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
				c := svc.botMove(&s, strat, seat)
				return match.ApplyMove(s, seat, c.ID(), strat, nowMs, svc.timeoutMs())
			})
	case match.PhaseBidding:
		_, err = svc.atomicApply(ctx, snap.MatchID, snap.Revision, "bot_bid",
			func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
				return match.ApplyBid(s, seat, svc.botBid(&s, strat, seat), nowMs, svc.timeoutMs())
			})
	case match.PhasePassing:
		// Bots pass their highest cards, same as the timeout rule; letting
		// the deadline fire would stall the table for the full timeout.
		_, err = svc.atomicApply(ctx, snap.MatchID, snap.Revision, "bot_pass",
			func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
				return match.ApplyPass(s, seat, match.HighestCardIDs(s.Hand(seat), 3), strat, nowMs, svc.timeoutMs())
			})
	}
	return eris.Wrap(err, "")
}
