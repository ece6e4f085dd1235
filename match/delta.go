package match

import (
	"reflect"

	"github.com/cardtable/tricksync/card"
)

// ChangedFields is the partial-snapshot payload of a Delta. A nil field means
// "unchanged"; immutable fields (game type, seed, players at deal time) only
// appear in full deltas.
type ChangedFields struct {
	GameType    *GameType `json:"game_type,omitempty"`
	Region      *string   `json:"region,omitempty"`
	Seed        *int64    `json:"seed,omitempty"`
	CreatedAtMs *int64    `json:"created_at_ms,omitempty"`
	AutoMove    *bool     `json:"auto_move,omitempty"`

	Players *[NumSeats]Player      `json:"players,omitempty"`
	Hands   *[NumSeats][]card.Card `json:"hands,omitempty"`

	Phase          *Phase `json:"phase,omitempty"`
	TurnIndex      *int   `json:"turn_index,omitempty"`
	TurnDeadlineMs *int64 `json:"turn_deadline_ms,omitempty"`

	LeadSuit     *card.Suit      `json:"lead_suit,omitempty"`
	CurrentTrick *[]TrickPlay    `json:"current_trick,omitempty"`
	TrickWins    *[NumSeats]int  `json:"trick_wins,omitempty"`
	Scores       *[NumSeats]int  `json:"scores,omitempty"`
	Bids         *[NumSeats]int  `json:"bids,omitempty"`
	BidSet       *[NumSeats]bool `json:"bid_set,omitempty"`
	HeartsBroken *bool           `json:"hearts_broken,omitempty"`

	PassDirection     *PassDirection         `json:"pass_direction,omitempty"`
	PassingSelections *[NumSeats][]card.Card `json:"passing_selections,omitempty"`
	Passed            *[NumSeats]bool        `json:"passed,omitempty"`

	LastCompletedTrick *CompletedTrick `json:"last_completed_trick,omitempty"`

	DealerIndex *int `json:"dealer_index,omitempty"`
	RoundNumber *int `json:"round_number,omitempty"`
}

// Delta is the unit returned by every mutating call and carried by events: the
// fields that changed between revision-1 and revision. Full deltas carry the
// entire snapshot and are used for first sync and catch-up.
type Delta struct {
	MatchID      string        `json:"match_id"`
	Revision     int64         `json:"revision"`
	Full         bool          `json:"full,omitempty"`
	Changed      ChangedFields `json:"changed"`
	ServerTimeMs int64         `json:"server_time_ms"`
}

// CreateDelta diffs two snapshots field by field. prev and next must be
// consecutive states of the same match.
func CreateDelta(prev, next Snapshot, serverTimeMs int64) Delta {
	d := Delta{
		MatchID:      next.MatchID,
		Revision:     next.Revision,
		ServerTimeMs: serverTimeMs,
	}
	c := &d.Changed
	if prev.Phase != next.Phase {
		c.Phase = &next.Phase
	}
	if prev.TurnIndex != next.TurnIndex {
		c.TurnIndex = &next.TurnIndex
	}
	if prev.TurnDeadlineMs != next.TurnDeadlineMs {
		c.TurnDeadlineMs = &next.TurnDeadlineMs
	}
	if prev.LeadSuit != next.LeadSuit {
		c.LeadSuit = &next.LeadSuit
	}
	if !reflect.DeepEqual(prev.CurrentTrick, next.CurrentTrick) {
		c.CurrentTrick = wireTrick(next.CurrentTrick)
	}
	if prev.TrickWins != next.TrickWins {
		c.TrickWins = &next.TrickWins
	}
	if prev.Scores != next.Scores {
		c.Scores = &next.Scores
	}
	if prev.Bids != next.Bids {
		c.Bids = &next.Bids
	}
	if prev.BidSet != next.BidSet {
		c.BidSet = &next.BidSet
	}
	if prev.HeartsBroken != next.HeartsBroken {
		c.HeartsBroken = &next.HeartsBroken
	}
	if prev.PassDirection != next.PassDirection {
		c.PassDirection = &next.PassDirection
	}
	if !reflect.DeepEqual(prev.PassingSelections, next.PassingSelections) {
		c.PassingSelections = &next.PassingSelections
	}
	if prev.Passed != next.Passed {
		c.Passed = &next.Passed
	}
	if !reflect.DeepEqual(prev.Hands, next.Hands) {
		c.Hands = &next.Hands
	}
	if prev.Players != next.Players {
		c.Players = &next.Players
	}
	if !reflect.DeepEqual(prev.LastCompletedTrick, next.LastCompletedTrick) {
		c.LastCompletedTrick = &next.LastCompletedTrick
	}
	if prev.DealerIndex != next.DealerIndex {
		c.DealerIndex = &next.DealerIndex
	}
	if prev.RoundNumber != next.RoundNumber {
		c.RoundNumber = &next.RoundNumber
	}
	return d
}

// wireTrick never points at a nil slice: a nil slice JSON-encodes as null,
// which decodes back to a nil pointer and would make a trick clear
// indistinguishable from "unchanged" after a wire round trip.
func wireTrick(t []TrickPlay) *[]TrickPlay {
	if t == nil {
		t = []TrickPlay{}
	}
	return &t
}

// FullDelta wraps an entire snapshot as a degenerate delta.
func FullDelta(s Snapshot, serverTimeMs int64) Delta {
	return Delta{
		MatchID:      s.MatchID,
		Revision:     s.Revision,
		Full:         true,
		ServerTimeMs: serverTimeMs,
		Changed: ChangedFields{
			GameType:           &s.GameType,
			Region:             &s.Region,
			Seed:               &s.Seed,
			CreatedAtMs:        &s.CreatedAtMs,
			AutoMove:           &s.AutoMove,
			Players:            &s.Players,
			Hands:              &s.Hands,
			Phase:              &s.Phase,
			TurnIndex:          &s.TurnIndex,
			TurnDeadlineMs:     &s.TurnDeadlineMs,
			LeadSuit:           &s.LeadSuit,
			CurrentTrick:       wireTrick(s.CurrentTrick),
			TrickWins:          &s.TrickWins,
			Scores:             &s.Scores,
			Bids:               &s.Bids,
			BidSet:             &s.BidSet,
			HeartsBroken:       &s.HeartsBroken,
			PassDirection:      &s.PassDirection,
			PassingSelections:  &s.PassingSelections,
			Passed:             &s.Passed,
			LastCompletedTrick: &s.LastCompletedTrick,
			DealerIndex:        &s.DealerIndex,
			RoundNumber:        &s.RoundNumber,
		},
	}
}

// ApplyDelta merges d onto base. Deltas at or below the base's revision are
// ignored and base is returned unchanged; this makes out-of-order and
// duplicate delivery safe, and the local revision can never move backwards.
func ApplyDelta(base Snapshot, d Delta) Snapshot {
	if d.Revision <= base.Revision && !(d.Full && d.Revision == base.Revision) {
		return base
	}
	next := base.Clone()
	next.MatchID = d.MatchID
	next.Revision = d.Revision
	c := d.Changed
	if c.GameType != nil {
		next.GameType = *c.GameType
	}
	if c.Region != nil {
		next.Region = *c.Region
	}
	if c.Seed != nil {
		next.Seed = *c.Seed
	}
	if c.CreatedAtMs != nil {
		next.CreatedAtMs = *c.CreatedAtMs
	}
	if c.AutoMove != nil {
		next.AutoMove = *c.AutoMove
	}
	if c.Players != nil {
		next.Players = *c.Players
	}
	if c.Hands != nil {
		next.Hands = *c.Hands
	}
	if c.Phase != nil {
		next.Phase = *c.Phase
	}
	if c.TurnIndex != nil {
		next.TurnIndex = *c.TurnIndex
	}
	if c.TurnDeadlineMs != nil {
		next.TurnDeadlineMs = *c.TurnDeadlineMs
	}
	if c.LeadSuit != nil {
		next.LeadSuit = *c.LeadSuit
	}
	if c.CurrentTrick != nil {
		next.CurrentTrick = *c.CurrentTrick
		if len(next.CurrentTrick) == 0 {
			next.CurrentTrick = nil
		}
	}
	if c.TrickWins != nil {
		next.TrickWins = *c.TrickWins
	}
	if c.Scores != nil {
		next.Scores = *c.Scores
	}
	if c.Bids != nil {
		next.Bids = *c.Bids
	}
	if c.BidSet != nil {
		next.BidSet = *c.BidSet
	}
	if c.HeartsBroken != nil {
		next.HeartsBroken = *c.HeartsBroken
	}
	if c.PassDirection != nil {
		next.PassDirection = *c.PassDirection
	}
	if c.PassingSelections != nil {
		next.PassingSelections = *c.PassingSelections
	}
	if c.Passed != nil {
		next.Passed = *c.Passed
	}
	if c.LastCompletedTrick != nil {
		next.LastCompletedTrick = *c.LastCompletedTrick
	}
	if c.DealerIndex != nil {
		next.DealerIndex = *c.DealerIndex
	}
	if c.RoundNumber != nil {
		next.RoundNumber = *c.RoundNumber
	}
	return next
}
