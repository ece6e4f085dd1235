package match

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/card"
)

// Config carries the immutable parameters of a new match.
type Config struct {
	GameType      GameType
	Region        string
	Seed          int64
	DealerIndex   int
	NowMs         int64
	TurnTimeoutMs int64
	AutoMove      bool
}

// NewWaiting returns a fresh WAITING snapshot holding only the creator.
// Cards are not dealt until StartRound.
func NewWaiting(matchID string, cfg Config, creator Player) Snapshot {
	s := Snapshot{
		MatchID:     matchID,
		Revision:    1,
		GameType:    cfg.GameType,
		Region:      cfg.Region,
		Seed:        cfg.Seed,
		CreatedAtMs: cfg.NowMs,
		AutoMove:    cfg.AutoMove,
		Phase:       PhaseWaiting,
		TurnIndex:   -1,
		DealerIndex: cfg.DealerIndex,
		RoundNumber: 0,
	}
	creator.Connected = true
	s.Players[0] = creator
	return s
}

// NewSnapshot deals and starts a match in one step: the WAITING phase is
// skipped and the round begins in the phase dictated by the game type.
func NewSnapshot(matchID string, cfg Config) Snapshot {
	s := NewWaiting(matchID, cfg, Player{})
	return StartRound(s, cfg.NowMs, cfg.TurnTimeoutMs)
}

// StartRound deals 13 sorted cards to each seat from the snapshot's seed and
// enters the round's opening phase: PASSING for Hearts (except hold rounds),
// BIDDING for Spades and Callbreak, PLAYING otherwise.
func StartRound(s Snapshot, nowMs, timeoutMs int64) Snapshot {
	next := s.Clone()
	next.RoundNumber++

	deck := card.ShuffledDeck(next.Seed + int64(next.RoundNumber) - 1)
	for seat := 0; seat < NumSeats; seat++ {
		hand := append([]card.Card(nil), deck[seat*13:(seat+1)*13]...)
		card.SortHand(hand)
		next.Hands[seat] = hand
	}

	next.CurrentTrick = nil
	next.LeadSuit = ""
	next.LastCompletedTrick = CompletedTrick{}
	next.HeartsBroken = false
	next.TrickWins = [NumSeats]int{}
	next.Bids = [NumSeats]int{}
	next.BidSet = [NumSeats]bool{}
	next.PassingSelections = [NumSeats][]card.Card{}
	next.Passed = [NumSeats]bool{}

	switch next.GameType {
	case Hearts:
		next.PassDirection = passDirectionForRound(next.RoundNumber)
		if next.PassDirection == "" {
			// Hold round: no passing, straight to play.
			next.Phase = PhasePlaying
			next.TurnIndex = openingSeat(&next)
		} else {
			next.Phase = PhasePassing
			next.TurnIndex = 0
		}
	case Spades, Callbreak:
		next.PassDirection = ""
		next.Phase = PhaseBidding
		next.TurnIndex = (next.DealerIndex + 1) % NumSeats
	default:
		next.PassDirection = ""
		next.Phase = PhasePlaying
		next.TurnIndex = 0
	}
	next.TurnDeadlineMs = nowMs + timeoutMs
	return next
}

// passDirectionForRound cycles LEFT, RIGHT, ACROSS, hold.
func passDirectionForRound(round int) PassDirection {
	switch (round - 1) % 4 {
	case 0:
		return PassLeft
	case 1:
		return PassRight
	case 2:
		return PassAcross
	}
	return ""
}

// openingSeat is the seat holding the variant's opening card, falling back to
// seat 0 when no seat holds it (only possible mid-reduction).
func openingSeat(s *Snapshot) int {
	for seat := 0; seat < NumSeats; seat++ {
		if card.Contains(s.Hands[seat], card.TwoOfClubs) {
			return seat
		}
	}
	return 0
}

// ApplyMove plays cardID for seat. On the trick's 4th card the trick is
// resolved through the strategy, and the match completes once all hands are
// empty.
func ApplyMove(s Snapshot, seat int, cardID string, strat Strategy, nowMs, timeoutMs int64) (Snapshot, error) {
	if s.Phase != PhasePlaying {
		return s, eris.Wrapf(ErrMatchNotActive, "phase is %s", s.Phase)
	}
	if seat != s.TurnIndex {
		return s, eris.Wrapf(ErrNotYourTurn, "turn belongs to seat %d", s.TurnIndex)
	}
	c, err := card.FromID(cardID)
	if err != nil {
		return s, eris.Wrap(ErrCardNotInHand, err.Error())
	}
	if !card.Contains(s.Hands[seat], c) {
		return s, eris.Wrapf(ErrCardNotInHand, "seat %d does not hold %s", seat, cardID)
	}
	if !card.Contains(strat.LegalMoves(&s, seat), c) {
		return s, eris.Wrapf(ErrIllegalMove, "%s is not a legal play", cardID)
	}

	next := s.Clone()
	next.Hands[seat], _ = card.Remove(next.Hands[seat], c)
	next.CurrentTrick = append(next.CurrentTrick, TrickPlay{Seat: seat, Card: c})
	if len(next.CurrentTrick) == 1 {
		next.LeadSuit = c.Suit
	}
	if c.Suit == card.Hearts || c == card.QueenOfSpades {
		next.HeartsBroken = true
	}

	if len(next.CurrentTrick) < NumSeats {
		next.TurnIndex = (seat + 1) % NumSeats
		next.TurnDeadlineMs = nowMs + timeoutMs
		return next, nil
	}

	winner := strat.TrickWinner(next.CurrentTrick, next.LeadSuit)
	points := strat.TrickPoints(next.CurrentTrick)
	next.Scores[winner] += points
	next.TrickWins[winner]++
	next.LastCompletedTrick = CompletedTrick{
		Plays:      next.CurrentTrick,
		Winner:     winner,
		Points:     points,
		ResolvedMs: nowMs,
	}
	next.CurrentTrick = nil
	next.LeadSuit = ""
	next.TurnIndex = winner
	next.TurnDeadlineMs = nowMs + timeoutMs

	if next.HandsEmpty() {
		for i, bonus := range strat.ScoreRound(&next) {
			next.Scores[i] += bonus
		}
		next.Phase = PhaseCompleted
		next.TurnIndex = -1
	}
	return next, nil
}

// ApplyPass records seat's 3-card passing selection. Passing is
// turn-serialized: only the seat at TurnIndex may pass. Once all four seats
// have passed, the cards are redistributed and play begins.
func ApplyPass(s Snapshot, seat int, cardIDs []string, strat Strategy, nowMs, timeoutMs int64) (Snapshot, error) {
	if s.Phase != PhasePassing {
		return s, eris.Wrapf(ErrMatchNotActive, "phase is %s", s.Phase)
	}
	if seat != s.TurnIndex {
		return s, eris.Wrapf(ErrNotYourTurn, "turn belongs to seat %d", s.TurnIndex)
	}
	if s.Passed[seat] {
		return s, eris.Wrapf(ErrAlreadyPassed, "seat %d", seat)
	}
	if len(cardIDs) != 3 {
		return s, eris.Wrapf(ErrInvalidPass, "got %d cards", len(cardIDs))
	}
	selection := make([]card.Card, 0, 3)
	for _, id := range cardIDs {
		c, err := card.FromID(id)
		if err != nil {
			return s, eris.Wrap(ErrInvalidPass, err.Error())
		}
		if !card.Contains(s.Hands[seat], c) {
			return s, eris.Wrapf(ErrInvalidPass, "seat %d does not hold %s", seat, id)
		}
		if card.Contains(selection, c) {
			return s, eris.Wrapf(ErrInvalidPass, "duplicate card %s", id)
		}
		selection = append(selection, c)
	}

	next := s.Clone()
	next.PassingSelections[seat] = selection
	next.Passed[seat] = true
	next.TurnIndex = (seat + 1) % NumSeats
	next.TurnDeadlineMs = nowMs + timeoutMs

	for i := 0; i < NumSeats; i++ {
		if !next.Passed[i] {
			return next, nil
		}
	}
	distributePasses(&next, strat)
	next.TurnDeadlineMs = nowMs + timeoutMs
	return next, nil
}

// distributePasses moves every recorded selection to its target seat per the
// round's direction, re-sorts hands, and opens play.
func distributePasses(s *Snapshot, strat Strategy) {
	offset := 1
	switch s.PassDirection {
	case PassRight:
		offset = 3
	case PassAcross:
		offset = 2
	}
	for seat := 0; seat < NumSeats; seat++ {
		for _, c := range s.PassingSelections[seat] {
			s.Hands[seat], _ = card.Remove(s.Hands[seat], c)
		}
	}
	for seat := 0; seat < NumSeats; seat++ {
		target := (seat + offset) % NumSeats
		s.Hands[target] = append(s.Hands[target], s.PassingSelections[seat]...)
	}
	for seat := 0; seat < NumSeats; seat++ {
		card.SortHand(s.Hands[seat])
		s.PassingSelections[seat] = nil
		s.Passed[seat] = false
	}
	s.Phase = PhasePlaying
	if opening, ok := strat.OpeningCard(); ok {
		s.TurnIndex = 0
		for seat := 0; seat < NumSeats; seat++ {
			if card.Contains(s.Hands[seat], opening) {
				s.TurnIndex = seat
				break
			}
		}
	} else {
		s.TurnIndex = 0
	}
}

// ApplyBid records seat's bid. Bidding is turn-serialized; after the 4th bid
// play begins at dealer+1.
func ApplyBid(s Snapshot, seat int, bid int, nowMs, timeoutMs int64) (Snapshot, error) {
	if s.Phase != PhaseBidding {
		return s, eris.Wrapf(ErrMatchNotActive, "phase is %s", s.Phase)
	}
	if seat != s.TurnIndex {
		return s, eris.Wrapf(ErrNotYourTurn, "turn belongs to seat %d", s.TurnIndex)
	}
	if s.BidSet[seat] {
		return s, eris.Wrapf(ErrAlreadyBid, "seat %d", seat)
	}
	if bid < 0 || bid > 13 {
		return s, eris.Wrapf(ErrInvalidBid, "bid %d out of range", bid)
	}

	next := s.Clone()
	next.Bids[seat] = bid
	next.BidSet[seat] = true
	next.TurnIndex = (seat + 1) % NumSeats
	next.TurnDeadlineMs = nowMs + timeoutMs

	for i := 0; i < NumSeats; i++ {
		if !next.BidSet[i] {
			return next, nil
		}
	}
	next.Phase = PhasePlaying
	next.TurnIndex = (next.DealerIndex + 1) % NumSeats
	return next, nil
}

// ApplyTimeout forces progress for the seat at TurnIndex once its deadline has
// passed: lowest legal card in PLAYING, the strategy's conservative bid in
// BIDDING, the three highest cards in PASSING. Before the deadline it reports
// no change.
func ApplyTimeout(s Snapshot, strat Strategy, nowMs, timeoutMs int64) (Snapshot, bool, error) {
	if !s.Active() {
		return s, false, nil
	}
	if nowMs <= s.TurnDeadlineMs {
		return s, false, nil
	}
	seat := s.TurnIndex
	switch s.Phase {
	case PhasePlaying:
		c := strat.TimeoutMove(&s, seat)
		next, err := ApplyMove(s, seat, c.ID(), strat, nowMs, timeoutMs)
		return next, err == nil, err
	case PhaseBidding:
		next, err := ApplyBid(s, seat, strat.TimeoutBid(&s, seat), nowMs, timeoutMs)
		return next, err == nil, err
	case PhasePassing:
		next, err := ApplyPass(s, seat, HighestCardIDs(s.Hands[seat], 3), strat, nowMs, timeoutMs)
		return next, err == nil, err
	}
	return s, false, nil
}

// HighestCardIDs picks the n highest-ranked cards of a hand, the selection
// forced passes and bot passes both use.
func HighestCardIDs(hand []card.Card, n int) []string {
	sorted := append([]card.Card(nil), hand...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank > sorted[j].Rank
		}
		return card.Less(sorted[j], sorted[i])
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	ids := make([]string, 0, n)
	for _, c := range sorted[:n] {
		ids = append(ids, c.ID())
	}
	return ids
}
