// Package server is the HTTP and websocket transport over the match service:
// fiber handlers for the RPC surface, a websocket push channel per match, and
// the error-kind to status-code mapping.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/service"
)

type Server struct {
	app     *fiber.App
	service *service.Service
	hub     *eventlog.Hub
	port    string
}

// Option configures the server.
type Option func(*Server)

// WithPort overrides the listen port (default from config/env).
func WithPort(port string) Option {
	return func(s *Server) { s.port = port }
}

func New(svc *service.Service, hub *eventlog.Hub, opts ...Option) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			ErrorHandler:          errorHandler,
			DisableStartupMessage: true,
		}),
		service: svc,
		hub:     hub,
		port:    GetConfig().Port,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.app.Get("/health", s.handleHealth)

	s.app.Post("/lobbies", s.handleCreateLobby)
	s.app.Post("/matches/find", s.handleFindMatch)
	s.app.Get("/matches/:matchID/snapshot", s.handleSnapshot)
	s.app.Post("/matches/:matchID/move", s.handleMove)
	s.app.Post("/matches/:matchID/pass", s.handlePass)
	s.app.Post("/matches/:matchID/bid", s.handleBid)
	s.app.Post("/matches/:matchID/timeout", s.handleTimeout)
	s.app.Post("/matches/:matchID/subscribe", s.handleSubscribe)
	s.app.Post("/matches/:matchID/unsubscribe", s.handleUnsubscribe)
	s.app.Post("/matches/:matchID/reconnect", s.handleReconnect)
	s.app.Post("/matches/:matchID/disconnect", s.handleDisconnect)
	s.app.Post("/matches/:matchID/end", s.handleEndMatch)

	s.registerEventsHandler("/events/:matchID")
}

// Serve blocks on the fiber listener.
func (s *Server) Serve() error {
	log.Logger.Info().Str("port", s.port).Msg("serving")
	return eris.Wrap(s.app.Listen(":"+s.port), "")
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown drains in-flight requests and closes every event subscriber.
func (s *Server) Shutdown() error {
	if s.hub != nil {
		s.hub.Shutdown()
	}
	return eris.Wrap(s.app.Shutdown(), "")
}
