// Package service is the authoritative coordinator: matchmaking, the
// atomic-apply write path every mutation funnels through, the timeout/bot
// sweeper, and subscription catch-up. It owns no game rules — those live in
// rules — and no persistence details — those live in store and eventlog.
package service

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cardtable/tricksync/card"
	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/store"
)

// BotMoveFunc picks a card for a bot seat. The default plays the variant's
// timeout move (lowest legal card).
type BotMoveFunc func(s *match.Snapshot, strat match.Strategy, seat int) card.Card

// BotBidFunc picks a bid for a bot seat.
type BotBidFunc func(s *match.Snapshot, strat match.Strategy, seat int) int

// RewardFunc is the economy hook invoked once per completed match with the
// final standings. The grants it returns are persisted with the match and
// surfaced through EndMatch. The default grants nothing.
type RewardFunc func(matchID string, standings []Standing) []Reward

// Standing is one row of a completed match's final ranking.
type Standing struct {
	Rank     int    `json:"rank"`
	Seat     int    `json:"seat"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	IsBot    bool   `json:"is_bot"`
	Score    int    `json:"score"`
}

// Reward is one grant produced by the economy hook.
type Reward struct {
	Seat     int    `json:"seat"`
	PlayerID string `json:"player_id"`
	Rank     int    `json:"rank"`
	Amount   int64  `json:"amount"`
}

// Config carries the service's tunables. Zero values are replaced by
// DefaultConfig's.
type Config struct {
	// TurnTimeout bounds how long a seat may hold the turn.
	TurnTimeout time.Duration
	// BotThinkDelay is how long a bot waits into its turn before acting,
	// so bot chains stay observable instead of resolving instantaneously.
	BotThinkDelay time.Duration
	// BotFillDelay is how long a WAITING match waits for humans before the
	// sweeper tops it up with bots and starts it.
	BotFillDelay time.Duration
	// ReconnectWindow is how long a disconnected seat is held before the
	// sweeper hands it to a bot.
	ReconnectWindow time.Duration
	// CompletedRetention is how long a completed match's keys linger for
	// late readers before expiring.
	CompletedRetention time.Duration
	// SweepInterval is the cadence of the timeout/bot sweeper.
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TurnTimeout:        30 * time.Second,
		BotThinkDelay:      1 * time.Second,
		BotFillDelay:       10 * time.Second,
		ReconnectWindow:    60 * time.Second,
		CompletedRetention: 24 * time.Hour,
		SweepInterval:      500 * time.Millisecond,
	}
}

// normalize fills zeroed fields from the defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = def.TurnTimeout
	}
	if c.BotThinkDelay <= 0 {
		c.BotThinkDelay = def.BotThinkDelay
	}
	if c.BotFillDelay <= 0 {
		c.BotFillDelay = def.BotFillDelay
	}
	if c.ReconnectWindow <= 0 {
		c.ReconnectWindow = def.ReconnectWindow
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = def.CompletedRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// Service is safe for concurrent use; all shared state lives in the store.
type Service struct {
	store  *store.Store
	events *eventlog.Log
	hub    *eventlog.Hub
	cfg    Config

	botMove BotMoveFunc
	botBid  BotBidFunc
	reward  RewardFunc

	// clock is swappable so tests can drive deadlines deterministically.
	clock func() time.Time

	logger zerolog.Logger
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithHub attaches a websocket fan-out hub; without one, appended events are
// only available by polling Subscribe.
func WithHub(h *eventlog.Hub) Option {
	return func(svc *Service) { svc.hub = h }
}

// WithBotMove overrides the bot card chooser.
func WithBotMove(fn BotMoveFunc) Option {
	return func(svc *Service) { svc.botMove = fn }
}

// WithBotBid overrides the bot bid chooser.
func WithBotBid(fn BotBidFunc) Option {
	return func(svc *Service) { svc.botBid = fn }
}

// WithReward attaches the economy hook fired on match completion.
func WithReward(fn RewardFunc) Option {
	return func(svc *Service) { svc.reward = fn }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(svc *Service) { svc.clock = clock }
}

func New(st *store.Store, events *eventlog.Log, cfg Config, opts ...Option) *Service {
	svc := &Service{
		store:  st,
		events: events,
		cfg:    cfg.normalize(),
		botMove: func(s *match.Snapshot, strat match.Strategy, seat int) card.Card {
			return strat.TimeoutMove(s, seat)
		},
		botBid: func(s *match.Snapshot, strat match.Strategy, seat int) int {
			return strat.TimeoutBid(s, seat)
		},
		reward: func(string, []Standing) []Reward { return nil },
		clock:  time.Now,
		logger: log.Logger.With().Str("component", "match_service").Logger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (svc *Service) nowMs() int64 {
	return svc.clock().UnixMilli()
}

func (svc *Service) timeoutMs() int64 {
	return svc.cfg.TurnTimeout.Milliseconds()
}
