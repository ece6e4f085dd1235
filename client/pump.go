package client

import (
	"context"
	"time"

	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/service"
)

// pump is the polling loop: it pulls events at a fast interval while the
// match is moving, drops to the idle interval when quiet, backs off on
// errors, and runs a slower full-resync safety net that doubles as a stall
// detector.
func (sc *SyncClient) pump(ctx context.Context) {
	defer close(sc.done)

	interval := sc.cfg.FastPollInterval
	resyncTicker := time.NewTicker(sc.cfg.ResyncInterval)
	defer resyncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-resyncTicker.C:
			if sc.stalled() {
				sc.logger.Warn().Msg("no progress inside stall window, forcing resync")
				if err := sc.resync(ctx); err != nil {
					sc.logger.Error().Err(err).Msg("stall resync failed")
				}
			}
		case <-time.After(interval):
			progressed, err := sc.poll(ctx)
			switch {
			case err != nil:
				interval = backoff(interval, sc.cfg.MaxBackoff)
				sc.logger.Warn().Err(err).Dur("backoff", interval).Msg("poll failed")
			case progressed:
				interval = sc.cfg.FastPollInterval
			default:
				interval = sc.cfg.IdlePollInterval
			}
		}

		if sc.completed() {
			return
		}
	}
}

// poll pulls one batch of events and merges them. It reports whether the
// local revision advanced.
func (sc *SyncClient) poll(ctx context.Context) (bool, error) {
	sc.mu.RLock()
	matchID, subID, before := sc.snap.MatchID, sc.subID, sc.snap.Revision
	lastEventID := sc.lastEventID
	sc.mu.RUnlock()

	// Naming both watermarks lets the server notice a stale local snapshot
	// even when the cursor claims we are caught up, and degrade the reply to
	// a full snapshot.
	reply, err := sc.svc.Subscribe(ctx, service.SubscribeRequest{
		MatchID:        matchID,
		SubscriptionID: subID,
		SinceEventID:   lastEventID,
		SinceRevision:  before,
	})
	if err != nil {
		return false, err
	}
	sc.mu.Lock()
	sc.subID = reply.SubscriptionID
	sc.lastEventID = reply.LatestEventID
	sc.mu.Unlock()

	for _, ev := range reply.Events {
		sc.applyDelta(ev.Payload)
	}
	return sc.Revision() > before, nil
}

func (sc *SyncClient) stalled() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.snap.Phase == match.PhasePlaying &&
		time.Since(sc.lastProgress) > sc.cfg.StallWindow
}

func (sc *SyncClient) completed() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.snap.Phase == match.PhaseCompleted
}

func backoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
