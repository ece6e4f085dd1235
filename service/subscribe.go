package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/codec"
	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/match"
)

// SubscribeRequest pulls the events a subscriber has not seen yet. A blank
// SubscriptionID opens a new subscription. A nonzero SinceEventID names the
// caller's own watermark and wins over the stored cursor, so a client that
// lost events it was already credited for can rewind and re-pull them. A
// nonzero SinceRevision is the caller's snapshot revision; if the reply's
// events would not bridge from it, the reply degrades to a full snapshot.
type SubscribeRequest struct {
	MatchID        string `json:"match_id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	SinceEventID   int64  `json:"since_event_id"`
	SinceRevision  int64  `json:"since_revision"`
}

type SubscribeReply struct {
	SubscriptionID string           `json:"subscription_id"`
	Events         []eventlog.Event `json:"events"`
	LatestEventID  int64            `json:"latest_event_id"`
}

// Subscribe returns the events since the subscription's watermark, advancing
// it. When the watermark predates the log's retention — or the retained
// events no longer reach the stored revision — the reply degrades to a single
// synthesized full-snapshot event, which is always sufficient to catch up.
func (svc *Service) Subscribe(ctx context.Context, req SubscribeRequest) (SubscribeReply, error) {
	subID := req.SubscriptionID
	since := req.SinceEventID
	if subID == "" {
		subID = uuid.NewString()
	} else if since == 0 {
		cursor, err := svc.events.Cursor(ctx, req.MatchID, subID)
		if err != nil {
			return SubscribeReply{}, err
		}
		since = cursor
	}

	events, latest, err := svc.events.Since(ctx, req.MatchID, since)
	if err != nil {
		return SubscribeReply{}, err
	}
	gap := eventlog.Trimmed(since, events) || (since > 0 && latest > since && len(events) == 0)
	if !gap && req.SinceRevision > 0 {
		gap, err = svc.revisionGap(ctx, req.MatchID, req.SinceRevision, events)
		if err != nil {
			return SubscribeReply{}, err
		}
	}
	if gap {
		snapEvent, err := svc.snapshotEvent(ctx, req.MatchID, latest)
		if err != nil {
			return SubscribeReply{}, err
		}
		events = []eventlog.Event{snapEvent}
	}

	if err := svc.events.SaveCursor(ctx, req.MatchID, subID, latest); err != nil {
		svc.logger.Warn().Err(err).Str("match_id", req.MatchID).Msg("cursor save failed")
	}
	return SubscribeReply{SubscriptionID: subID, Events: events, LatestEventID: latest}, nil
}

// Unsubscribe forgets a subscription's cursor.
func (svc *Service) Unsubscribe(ctx context.Context, matchID, subscriptionID string) error {
	return svc.events.DropCursor(ctx, matchID, subscriptionID)
}

// GetSnapshot returns the current authoritative snapshot as a full delta,
// the shape a client resync consumes.
func (svc *Service) GetSnapshot(ctx context.Context, matchID string) (match.Snapshot, match.Delta, error) {
	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		return match.Snapshot{}, match.Delta{}, err
	}
	return snap, match.FullDelta(snap, svc.nowMs()), nil
}

// revisionGap reports whether the batch fails to bridge the subscriber's
// snapshot revision to the authoritative one. Deltas only chain one revision
// at a time: a first event more than one revision ahead, or an empty batch
// against an advanced snapshot, means the subscriber cannot replay its way
// forward and needs the full snapshot instead.
func (svc *Service) revisionGap(ctx context.Context, matchID string, sinceRevision int64, events []eventlog.Event) (bool, error) {
	if len(events) > 0 {
		return events[0].Revision > sinceRevision+1, nil
	}
	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		return false, err
	}
	return snap.Revision > sinceRevision, nil
}

// snapshotEvent synthesizes the catch-up event for a subscriber behind the
// log's retention. It reuses the latest assigned event id: the subscriber's
// cursor lands at the log's tip without consuming a real id.
func (svc *Service) snapshotEvent(ctx context.Context, matchID string, latest int64) (eventlog.Event, error) {
	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		return eventlog.Event{}, err
	}
	nowMs := svc.nowMs()
	return eventlog.Event{
		EventID:   latest,
		Type:      eventlog.TypeSnapshot,
		MatchID:   matchID,
		Revision:  snap.Revision,
		Timestamp: nowMs,
		ActorSeat: -1,
		Payload:   match.FullDelta(snap, nowMs),
	}, nil
}

// EndMatch returns the final standings and reward grants of a completed
// match. The reward hook already ran when the completing move committed and
// its grants were persisted then; this is a read for callers arriving after
// the fact, never a second grant.
func (svc *Service) EndMatch(ctx context.Context, matchID string) ([]Standing, []Reward, error) {
	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}
	if snap.Phase != match.PhaseCompleted {
		return nil, nil, eris.Wrapf(match.ErrMatchNotActive, "match %s is %s", matchID, snap.Phase)
	}
	var rewards []Reward
	if bz, err := svc.store.Rewards(ctx, matchID); err == nil {
		rewards, err = codec.Decode[[]Reward](bz)
		if err != nil {
			return nil, nil, err
		}
	} else if match.Kind(err) != match.KindNotFound {
		return nil, nil, err
	}
	return Standings(snap), rewards, nil
}
