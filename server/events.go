package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
)

func webSocketUpgrader(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return eris.Wrap(c.Next(), "")
	}
	return fiber.ErrUpgradeRequired
}

// registerEventsHandler mounts the push channel: events appended by the
// service are fanned out to every websocket subscribed to the match id.
func (s *Server) registerEventsHandler(path string) {
	if s.hub == nil {
		return
	}
	s.app.Use(path, webSocketUpgrader)
	s.app.Get(path, websocket.New(s.hub.NewWebSocketHandler()))
}
