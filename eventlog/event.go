// Package eventlog keeps the per-match append-only event log and the
// websocket fan-out hub. The log is a capped redis list: clients further
// behind than the cap resync from a full snapshot instead.
package eventlog

import "github.com/cardtable/tricksync/match"

// Type tags what a state-change event describes.
type Type string

const (
	TypeMatchStarted       Type = "MATCH_STARTED"
	TypePlayerJoined       Type = "PLAYER_JOINED"
	TypeCardPlayed         Type = "CARD_PLAYED"
	TypeTrickCompleted     Type = "TRICK_COMPLETED"
	TypeTurnChanged        Type = "TURN_CHANGED"
	TypeBidSubmitted       Type = "BID_SUBMITTED"
	TypeBiddingCompleted   Type = "BIDDING_COMPLETED"
	TypeCardsPassed        Type = "CARDS_PASSED"
	TypeCardsDistributed   Type = "CARDS_DISTRIBUTED"
	TypeMatchCompleted     Type = "MATCH_COMPLETED"
	TypePlayerDisconnected Type = "PLAYER_DISCONNECTED"
	TypePlayerReconnected  Type = "PLAYER_RECONNECTED"

	// TypeSnapshot is the synthesized catch-up event carrying a full
	// snapshot, emitted when a subscriber's watermark predates the log cap.
	TypeSnapshot Type = "SNAPSHOT"
)

// Event is one state-change notification. EventID is strictly increasing per
// match; Payload is the delta that takes a snapshot at Revision-1 to
// Revision (or a full snapshot for TypeSnapshot).
type Event struct {
	EventID   int64       `json:"event_id"`
	Type      Type        `json:"type"`
	MatchID   string      `json:"match_id"`
	Revision  int64       `json:"revision"`
	Timestamp int64       `json:"timestamp"`
	ActorSeat int         `json:"actor_seat"`
	Payload   match.Delta `json:"payload"`
}
