package match

import (
	"github.com/cardtable/tricksync/card"
)

// GameType selects the rule variant a match is played under.
type GameType string

const (
	Hearts    GameType = "HEARTS"
	Spades    GameType = "SPADES"
	Callbreak GameType = "CALLBREAK"
)

// Phase is the coarse stage of a round. Progression within a round is
// monotonic: WAITING -> (PASSING|BIDDING|PLAYING) -> PLAYING -> COMPLETED.
type Phase string

const (
	PhaseWaiting   Phase = "WAITING"
	PhasePassing   Phase = "PASSING"
	PhaseBidding   Phase = "BIDDING"
	PhasePlaying   Phase = "PLAYING"
	PhaseCompleted Phase = "COMPLETED"
)

// PassDirection says where a seat's passing selection travels.
type PassDirection string

const (
	PassLeft   PassDirection = "LEFT"
	PassRight  PassDirection = "RIGHT"
	PassAcross PassDirection = "ACROSS"
)

// NumSeats is fixed: every match has exactly four seats.
const NumSeats = 4

// Player identifies the occupant of one seat.
type Player struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IsBot            bool   `json:"is_bot"`
	Connected        bool   `json:"connected"`
	DisconnectedAtMs int64  `json:"disconnected_at_ms,omitempty"`
	TeamID           int    `json:"team_id,omitempty"`
}

// TrickPlay records one card laid into the current trick.
type TrickPlay struct {
	Seat int       `json:"seat"`
	Card card.Card `json:"card"`
}

// CompletedTrick is the most recently resolved trick, kept one deep so a
// client that missed the resolution can still animate it.
type CompletedTrick struct {
	Plays      []TrickPlay `json:"plays"`
	Winner     int         `json:"winner"`
	Points     int         `json:"points"`
	ResolvedMs int64       `json:"resolved_ms"`
}

// Snapshot is the authoritative state of a match. It is mutated exclusively
// through the reducer and written back through the versioned store; Revision
// is its optimistic-concurrency token and increases by exactly 1 per accepted
// mutation.
type Snapshot struct {
	MatchID     string   `json:"match_id"`
	Revision    int64    `json:"revision"`
	GameType    GameType `json:"game_type"`
	Region      string   `json:"region,omitempty"`
	Seed        int64    `json:"seed"`
	CreatedAtMs int64    `json:"created_at_ms"`

	// AutoMove lets the timeout sweeper force a play for stalled human
	// seats. Bot seats are always driven regardless.
	AutoMove bool `json:"auto_move"`

	Players [NumSeats]Player      `json:"players"`
	Hands   [NumSeats][]card.Card `json:"hands"`

	Phase          Phase `json:"phase"`
	TurnIndex      int   `json:"turn_index"`
	TurnDeadlineMs int64 `json:"turn_deadline_ms"`

	LeadSuit     card.Suit      `json:"lead_suit,omitempty"`
	CurrentTrick []TrickPlay    `json:"current_trick"`
	TrickWins    [NumSeats]int  `json:"trick_wins"`
	Scores       [NumSeats]int  `json:"scores"`
	Bids         [NumSeats]int  `json:"bids"`
	BidSet       [NumSeats]bool `json:"bid_set"`
	HeartsBroken bool           `json:"hearts_broken"`

	PassDirection     PassDirection         `json:"pass_direction,omitempty"`
	PassingSelections [NumSeats][]card.Card `json:"passing_selections"`
	Passed            [NumSeats]bool        `json:"passed"`

	LastCompletedTrick CompletedTrick `json:"last_completed_trick"`

	DealerIndex int `json:"dealer_index"`
	RoundNumber int `json:"round_number"`
}

// Clone returns a deep copy. The reducer never mutates its input snapshot, so
// every Apply function starts from a Clone.
func (s Snapshot) Clone() Snapshot {
	out := s
	for i := 0; i < NumSeats; i++ {
		out.Hands[i] = append([]card.Card(nil), s.Hands[i]...)
		out.PassingSelections[i] = append([]card.Card(nil), s.PassingSelections[i]...)
	}
	out.CurrentTrick = append([]TrickPlay(nil), s.CurrentTrick...)
	out.LastCompletedTrick.Plays = append([]TrickPlay(nil), s.LastCompletedTrick.Plays...)
	return out
}

// Hand returns the cards currently held by the given seat.
func (s *Snapshot) Hand(seat int) []card.Card {
	return s.Hands[seat]
}

// HandsEmpty reports whether every seat has played out its hand.
func (s *Snapshot) HandsEmpty() bool {
	for i := 0; i < NumSeats; i++ {
		if len(s.Hands[i]) > 0 {
			return false
		}
	}
	return true
}

// SeatOf returns the seat occupied by the given player id, or -1.
func (s *Snapshot) SeatOf(playerID string) int {
	for i := 0; i < NumSeats; i++ {
		if s.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// OpenSeat returns the first unoccupied seat, or -1 when the table is full.
func (s *Snapshot) OpenSeat() int {
	for i := 0; i < NumSeats; i++ {
		if s.Players[i].ID == "" {
			return i
		}
	}
	return -1
}

// Active reports whether the match still needs turn-keeping (timeouts, bots).
func (s *Snapshot) Active() bool {
	switch s.Phase {
	case PhasePassing, PhaseBidding, PhasePlaying:
		return true
	}
	return false
}
