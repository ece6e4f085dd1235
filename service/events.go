package service

import (
	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/match"
)

// deriveEvents classifies one accepted transition into its typed events. The
// first event carries the transition's delta; follow-ups at the same revision
// carry a header-only delta, which ApplyDelta ignores once the first has been
// merged, so multi-event transitions never double-apply.
//
// Game actions are turn-serialized, so the acting seat is always the previous
// turn-holder; joins, disconnects, and other system transitions carry -1.
func deriveEvents(prev, next match.Snapshot, delta match.Delta) []*eventlog.Event {
	var types []eventlog.Type
	actorSeat := -1
	if prev.Active() {
		actorSeat = prev.TurnIndex
	}

	if prev.Phase == match.PhaseWaiting && next.Phase != match.PhaseWaiting {
		types = append(types, eventlog.TypeMatchStarted)
	}
	for seat := 0; seat < match.NumSeats; seat++ {
		before, after := prev.Players[seat], next.Players[seat]
		switch {
		case before.ID == "" && after.ID != "":
			types = append(types, eventlog.TypePlayerJoined)
		case before.Connected && !after.Connected,
			!before.IsBot && after.IsBot:
			types = append(types, eventlog.TypePlayerDisconnected)
		case !before.Connected && after.Connected && before.ID == after.ID:
			types = append(types, eventlog.TypePlayerReconnected)
		}
	}
	if len(next.CurrentTrick) > len(prev.CurrentTrick) {
		types = append(types, eventlog.TypeCardPlayed)
	}
	if next.LastCompletedTrick.ResolvedMs != prev.LastCompletedTrick.ResolvedMs &&
		len(next.LastCompletedTrick.Plays) == match.NumSeats {
		types = append(types, eventlog.TypeCardPlayed, eventlog.TypeTrickCompleted)
	}
	if countSet(next.BidSet) > countSet(prev.BidSet) {
		types = append(types, eventlog.TypeBidSubmitted)
	}
	if prev.Phase == match.PhaseBidding && next.Phase == match.PhasePlaying {
		types = append(types, eventlog.TypeBiddingCompleted)
	}
	if countSet(next.Passed) > countSet(prev.Passed) {
		types = append(types, eventlog.TypeCardsPassed)
	}
	if prev.Phase == match.PhasePassing && next.Phase == match.PhasePlaying {
		types = append(types, eventlog.TypeCardsPassed, eventlog.TypeCardsDistributed)
	}
	if next.TurnIndex != prev.TurnIndex && next.Phase != match.PhaseCompleted {
		types = append(types, eventlog.TypeTurnChanged)
	}
	if next.Phase == match.PhaseCompleted && prev.Phase != match.PhaseCompleted {
		types = append(types, eventlog.TypeMatchCompleted)
	}

	// Every committed write must reach subscribers even when no specific
	// classification fired.
	if len(types) == 0 {
		types = append(types, eventlog.TypeTurnChanged)
	}

	header := match.Delta{
		MatchID:      delta.MatchID,
		Revision:     delta.Revision,
		ServerTimeMs: delta.ServerTimeMs,
	}
	events := make([]*eventlog.Event, 0, len(types))
	for i, t := range types {
		payload := header
		if i == 0 {
			payload = delta
		}
		events = append(events, &eventlog.Event{
			Type:      t,
			MatchID:   next.MatchID,
			Revision:  next.Revision,
			Timestamp: delta.ServerTimeMs,
			ActorSeat: actorSeat,
			Payload:   payload,
		})
	}
	return events
}

func countSet(flags [match.NumSeats]bool) int {
	n := 0
	for _, set := range flags {
		if set {
			n++
		}
	}
	return n
}
