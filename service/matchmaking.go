package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/store"
)

// FindMatchRequest asks for a seat. CurrentMatchID lets a caller who knows
// which match it dropped from skip the disconnect-marker lookup.
type FindMatchRequest struct {
	GameType       match.GameType `json:"game_type"`
	Region         string         `json:"region,omitempty"`
	PlayerID       string         `json:"player_id"`
	PlayerName     string         `json:"player_name"`
	CurrentMatchID string         `json:"current_match_id,omitempty"`
	AutoMove       bool           `json:"auto_move"`
}

type FindMatchReply struct {
	MatchID     string         `json:"match_id"`
	Seat        int            `json:"seat"`
	Reconnected bool           `json:"reconnected"`
	Created     bool           `json:"created"`
	Snapshot    match.Snapshot `json:"snapshot"`
}

// slotKey scopes the waiting-match slot: one joinable match per game type,
// or per game type and region when the caller names one.
func slotKey(gameType match.GameType, region string) string {
	if region == "" {
		return string(gameType)
	}
	return string(gameType) + "@" + region
}

// FindMatch is the entry point for players: rejoin a match they recently
// dropped from, else join the waiting match for their game type and region,
// else create a new waiting match and advertise it. Exactly one creator wins
// the waiting slot; losers of that race join the winner's match instead.
func (svc *Service) FindMatch(ctx context.Context, req FindMatchRequest) (FindMatchReply, error) {
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}
	if req.GameType == "" {
		req.GameType = match.Hearts
	}

	if reply, ok, err := svc.tryRejoin(ctx, req); err != nil {
		return FindMatchReply{}, err
	} else if ok {
		return reply, nil
	}

	// A joiner and a creator can race the waiting slot; one extra lap
	// covers every interleaving.
	for attempt := 0; attempt < 2; attempt++ {
		if reply, ok, err := svc.tryJoinWaiting(ctx, req); err != nil {
			return FindMatchReply{}, err
		} else if ok {
			return reply, nil
		}
		if reply, ok, err := svc.tryCreateWaiting(ctx, req); err != nil {
			return FindMatchReply{}, err
		} else if ok {
			return reply, nil
		}
	}
	return FindMatchReply{}, eris.New("matchmaking slot contention, retry")
}

// tryRejoin restores the player into a match they disconnected from inside
// the reconnect window.
func (svc *Service) tryRejoin(ctx context.Context, req FindMatchRequest) (FindMatchReply, bool, error) {
	matchID := req.CurrentMatchID
	if matchID == "" {
		marker, err := svc.store.DisconnectMarker(ctx, req.PlayerID)
		if err != nil {
			return FindMatchReply{}, false, err
		}
		matchID = marker
	}
	if matchID == "" {
		return FindMatchReply{}, false, nil
	}
	reply, err := svc.Reconnect(ctx, matchID, req.PlayerID)
	if err != nil {
		// A lapsed or bot-replaced seat falls through to fresh matchmaking.
		if match.Kind(err) == match.KindNotFound || match.Kind(err) == match.KindState {
			return FindMatchReply{}, false, nil
		}
		return FindMatchReply{}, false, err
	}
	return reply, true, nil
}

// tryJoinWaiting seats the player into the advertised waiting match. The
// join that fills the 4th seat deals and starts the round.
func (svc *Service) tryJoinWaiting(ctx context.Context, req FindMatchRequest) (FindMatchReply, bool, error) {
	matchID, err := svc.store.Waiting(ctx, slotKey(req.GameType, req.Region))
	if err != nil {
		return FindMatchReply{}, false, err
	}
	if matchID == "" {
		return FindMatchReply{}, false, nil
	}

	seat := -1
	started := false
	_, err = svc.atomicApply(ctx, matchID, AnyRevision, "join",
		func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
			if s.Phase != match.PhaseWaiting {
				return s, eris.Wrapf(match.ErrMatchNotActive, "match %s already started", matchID)
			}
			if existing := s.SeatOf(req.PlayerID); existing >= 0 {
				seat = existing
				return s, errNoProgress
			}
			open := s.OpenSeat()
			if open < 0 {
				return s, eris.Wrapf(match.ErrMatchNotActive, "match %s is full", matchID)
			}
			next := s.Clone()
			next.Players[open] = match.Player{
				ID:        req.PlayerID,
				Name:      req.PlayerName,
				Connected: true,
			}
			seat = open
			if next.OpenSeat() < 0 {
				next = match.StartRound(next, nowMs, svc.timeoutMs())
				started = true
			}
			return next, nil
		})
	if err != nil {
		if match.Kind(err) == match.KindState || match.Kind(err) == match.KindNotFound {
			// Stale slot: release it and let the caller create or retry.
			_ = svc.store.ClearWaiting(ctx, slotKey(req.GameType, req.Region), matchID)
			return FindMatchReply{}, false, nil
		}
		return FindMatchReply{}, false, err
	}
	if started {
		_ = svc.store.ClearWaiting(ctx, slotKey(req.GameType, req.Region), matchID)
	}

	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		return FindMatchReply{}, false, err
	}
	svc.logger.Info().Str("match_id", matchID).Int("seat", seat).
		Bool("started", started).Msg("player joined")
	return FindMatchReply{MatchID: matchID, Seat: seat, Snapshot: snap}, true, nil
}

// tryCreateWaiting creates a fresh WAITING match with the player at seat 0
// and claims the waiting slot. Losing the slot race reports not-ok so the
// caller joins the winner instead; the orphaned match is cleaned up.
func (svc *Service) tryCreateWaiting(ctx context.Context, req FindMatchRequest) (FindMatchReply, bool, error) {
	matchID := uuid.NewString()
	now := svc.clock()
	snap := match.NewWaiting(matchID, match.Config{
		GameType:      req.GameType,
		Region:        req.Region,
		Seed:          now.UnixNano(),
		NowMs:         now.UnixMilli(),
		TurnTimeoutMs: svc.timeoutMs(),
		AutoMove:      req.AutoMove,
	}, match.Player{ID: req.PlayerID, Name: req.PlayerName})
	if err := svc.store.Create(ctx, snap); err != nil {
		return FindMatchReply{}, false, err
	}
	if err := svc.store.SetWaiting(ctx, slotKey(req.GameType, req.Region), matchID); err != nil {
		if eris.Is(err, store.ErrVersionConflict) {
			_ = svc.store.Retire(ctx, matchID, 0)
			return FindMatchReply{}, false, nil
		}
		return FindMatchReply{}, false, err
	}
	svc.logger.Info().Str("match_id", matchID).
		Str("game_type", string(req.GameType)).Msg("waiting match created")
	return FindMatchReply{MatchID: matchID, Seat: 0, Created: true, Snapshot: snap}, true, nil
}

// CreateLobbyRequest opens an empty waiting match for a game type, optionally
// pinned to a region.
type CreateLobbyRequest struct {
	GameType match.GameType `json:"game_type"`
	Region   string         `json:"region,omitempty"`
}

type CreateLobbyReply struct {
	LobbyID string `json:"lobby_id"`
}

// CreateLobby opens an empty WAITING match and claims the waiting slot for
// its game type and region, so subsequent FindMatch calls seat into it. Only
// one lobby per slot can be open at a time.
func (svc *Service) CreateLobby(ctx context.Context, req CreateLobbyRequest) (CreateLobbyReply, error) {
	if req.GameType == "" {
		req.GameType = match.Hearts
	}
	lobbyID := uuid.NewString()
	now := svc.clock()
	snap := match.NewWaiting(lobbyID, match.Config{
		GameType:      req.GameType,
		Region:        req.Region,
		Seed:          now.UnixNano(),
		NowMs:         now.UnixMilli(),
		TurnTimeoutMs: svc.timeoutMs(),
	}, match.Player{})
	// No creator: all four seats start open.
	snap.Players[0] = match.Player{}
	if err := svc.store.Create(ctx, snap); err != nil {
		return CreateLobbyReply{}, err
	}
	if err := svc.store.SetWaiting(ctx, slotKey(req.GameType, req.Region), lobbyID); err != nil {
		if eris.Is(err, store.ErrVersionConflict) {
			_ = svc.store.Retire(ctx, lobbyID, 0)
			return CreateLobbyReply{}, eris.Wrapf(match.ErrMatchNotActive,
				"a %s lobby is already open", slotKey(req.GameType, req.Region))
		}
		return CreateLobbyReply{}, err
	}
	svc.logger.Info().Str("match_id", lobbyID).
		Str("game_type", string(req.GameType)).Str("region", req.Region).Msg("lobby created")
	return CreateLobbyReply{LobbyID: lobbyID}, nil
}

// Reconnect restores a disconnected player to their seat. It fails with a
// state error once the sweeper has handed the seat to a bot.
func (svc *Service) Reconnect(ctx context.Context, matchID, playerID string) (FindMatchReply, error) {
	seat := -1
	_, err := svc.atomicApply(ctx, matchID, AnyRevision, "reconnect",
		func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
			found := s.SeatOf(playerID)
			if found < 0 {
				return s, eris.Wrapf(match.ErrMatchNotFound, "player %s has no seat in %s", playerID, matchID)
			}
			if s.Players[found].IsBot {
				return s, eris.Wrapf(match.ErrMatchNotActive, "seat %d was handed to a bot", found)
			}
			seat = found
			if s.Players[found].Connected {
				return s, errNoProgress
			}
			next := s.Clone()
			next.Players[found].Connected = true
			next.Players[found].DisconnectedAtMs = 0
			return next, nil
		})
	if err != nil {
		return FindMatchReply{}, err
	}
	if err := svc.store.ClearDisconnect(ctx, playerID); err != nil {
		svc.logger.Warn().Err(err).Str("player_id", playerID).Msg("marker cleanup failed")
	}
	snap, _, err := svc.store.Snapshot(ctx, matchID)
	if err != nil {
		return FindMatchReply{}, err
	}
	svc.logger.Info().Str("match_id", matchID).Int("seat", seat).Msg("player reconnected")
	return FindMatchReply{MatchID: matchID, Seat: seat, Reconnected: true, Snapshot: snap}, nil
}

// Disconnect flags a player's seat as disconnected and leaves a TTL'd marker
// so they can find their way back within the reconnect window.
func (svc *Service) Disconnect(ctx context.Context, matchID, playerID string) error {
	_, err := svc.atomicApply(ctx, matchID, AnyRevision, "disconnect",
		func(s match.Snapshot, strat match.Strategy, nowMs int64) (match.Snapshot, error) {
			seat := s.SeatOf(playerID)
			if seat < 0 {
				return s, eris.Wrapf(match.ErrMatchNotFound, "player %s has no seat in %s", playerID, matchID)
			}
			if !s.Players[seat].Connected || s.Players[seat].IsBot {
				return s, errNoProgress
			}
			next := s.Clone()
			next.Players[seat].Connected = false
			next.Players[seat].DisconnectedAtMs = nowMs
			return next, nil
		})
	if err != nil {
		return err
	}
	return svc.store.MarkDisconnected(ctx, matchID, playerID, svc.cfg.ReconnectWindow)
}

// botPlayer mints the identity for a bot filling the given seat.
func botPlayer(seat int) match.Player {
	return match.Player{
		ID:        "bot-" + uuid.NewString(),
		Name:      fmt.Sprintf("Bot %d", seat+1),
		IsBot:     true,
		Connected: true,
	}
}
