package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cardtable/tricksync/codec"
	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/service"
)

func decodeBody[T any](c *fiber.Ctx) (T, error) {
	val, err := codec.Decode[T](c.Body())
	if err != nil {
		var zero T
		return zero, fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	return val, nil
}

type HealthReply struct {
	IsServerRunning  bool `json:"is_server_running"`
	EventSubscribers int  `json:"event_subscribers"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	reply := HealthReply{IsServerRunning: true}
	if s.hub != nil {
		reply.EventSubscribers = s.hub.ConnectionCount()
	}
	return c.JSON(reply)
}

func (s *Server) handleFindMatch(c *fiber.Ctx) error {
	req, err := decodeBody[service.FindMatchRequest](c)
	if err != nil {
		return err
	}
	reply, err := s.service.FindMatch(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}

// SnapshotReply pairs the authoritative snapshot with its full-delta form,
// which is what a resyncing client merges.
type SnapshotReply struct {
	Snapshot match.Snapshot `json:"snapshot"`
	Delta    match.Delta    `json:"delta"`
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	snap, delta, err := s.service.GetSnapshot(c.Context(), c.Params("matchID"))
	if err != nil {
		return err
	}
	return c.JSON(SnapshotReply{Snapshot: snap, Delta: delta})
}

// SubmitReply is the response to every accepted mutation: the delta from the
// revision the caller submitted against to the new one.
type SubmitReply struct {
	Delta match.Delta `json:"delta"`
}

func (s *Server) handleMove(c *fiber.Ctx) error {
	req, err := decodeBody[service.SubmitMoveRequest](c)
	if err != nil {
		return err
	}
	req.MatchID = c.Params("matchID")
	delta, err := s.service.SubmitMove(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(SubmitReply{Delta: delta})
}

func (s *Server) handlePass(c *fiber.Ctx) error {
	req, err := decodeBody[service.SubmitPassRequest](c)
	if err != nil {
		return err
	}
	req.MatchID = c.Params("matchID")
	delta, err := s.service.SubmitPass(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(SubmitReply{Delta: delta})
}

func (s *Server) handleBid(c *fiber.Ctx) error {
	req, err := decodeBody[service.SubmitBidRequest](c)
	if err != nil {
		return err
	}
	req.MatchID = c.Params("matchID")
	delta, err := s.service.SubmitBid(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(SubmitReply{Delta: delta})
}

// TimeoutReply reports whether the timeout actually forced progress;
// Progressed is false when the deadline had not lapsed yet.
type TimeoutReply struct {
	Progressed bool        `json:"progressed"`
	Delta      match.Delta `json:"delta"`
}

func (s *Server) handleTimeout(c *fiber.Ctx) error {
	delta, err := s.service.TimeoutMove(c.Context(), c.Params("matchID"))
	if err != nil {
		return err
	}
	return c.JSON(TimeoutReply{Progressed: delta.Revision > 0, Delta: delta})
}

func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	req, err := decodeBody[service.SubscribeRequest](c)
	if err != nil {
		return err
	}
	req.MatchID = c.Params("matchID")
	reply, err := s.service.Subscribe(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}

type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

func (s *Server) handleUnsubscribe(c *fiber.Ctx) error {
	req, err := decodeBody[UnsubscribeRequest](c)
	if err != nil {
		return err
	}
	if err := s.service.Unsubscribe(c.Context(), c.Params("matchID"), req.SubscriptionID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) handleReconnect(c *fiber.Ctx) error {
	req, err := decodeBody[PlayerRequest](c)
	if err != nil {
		return err
	}
	reply, err := s.service.Reconnect(c.Context(), c.Params("matchID"), req.PlayerID)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}

func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	req, err := decodeBody[PlayerRequest](c)
	if err != nil {
		return err
	}
	if err := s.service.Disconnect(c.Context(), c.Params("matchID"), req.PlayerID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleCreateLobby(c *fiber.Ctx) error {
	req, err := decodeBody[service.CreateLobbyRequest](c)
	if err != nil {
		return err
	}
	reply, err := s.service.CreateLobby(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}

type EndMatchReply struct {
	Standings []service.Standing `json:"standings"`
	Rewards   []service.Reward   `json:"rewards"`
}

func (s *Server) handleEndMatch(c *fiber.Ctx) error {
	standings, rewards, err := s.service.EndMatch(c.Context(), c.Params("matchID"))
	if err != nil {
		return err
	}
	return c.JSON(EndMatchReply{Standings: standings, Rewards: rewards})
}
