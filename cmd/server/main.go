package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/server"
	"github.com/cardtable/tricksync/service"
	"github.com/cardtable/tricksync/statsd"
	"github.com/cardtable/tricksync/store"
)

func main() {
	cfg := server.GetConfig()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Logger.Fatal().Err(err).Str("address", cfg.RedisAddress).Msg("redis unreachable")
	}

	if cfg.StatsdAddress != "" {
		if err := statsd.Init(cfg.StatsdAddress, []string{"deploy_mode:" + cfg.DeployMode}); err != nil {
			log.Logger.Warn().Err(err).Msg("statsd disabled")
		}
	}

	hub := eventlog.NewHub()
	svc := service.New(
		store.New(client),
		eventlog.New(client, eventlog.DefaultCap),
		service.Config{
			TurnTimeout:     cfg.TurnTimeout,
			BotThinkDelay:   cfg.BotThinkDelay,
			BotFillDelay:    cfg.BotFillDelay,
			ReconnectWindow: cfg.ReconnectWindow,
		},
		service.WithHub(hub),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartSweeper(ctx)

	srv := server.New(svc, hub, server.WithPort(cfg.Port))

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		cancel()
		if err := srv.Shutdown(); err != nil {
			log.Logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.Serve(); err != nil {
		log.Logger.Fatal().Err(err).Msg("server stopped")
	}
}
