package server

import (
	"os"
	"time"
)

// Config is assembled from environment variables with development defaults,
// so the binary runs bare against a local redis.
type Config struct {
	RedisAddress  string
	RedisPassword string
	Port          string
	DeployMode    string
	StatsdAddress string

	TurnTimeout     time.Duration
	BotThinkDelay   time.Duration
	BotFillDelay    time.Duration
	ReconnectWindow time.Duration
}

func GetConfig() Config {
	return Config{
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		Port:            getEnv("TRICKSYNC_PORT", "4040"),
		DeployMode:      getEnv("TRICKSYNC_DEPLOY_MODE", "development"),
		StatsdAddress:   getEnv("STATSD_ADDRESS", ""),
		TurnTimeout:     getEnvDuration("TURN_TIMEOUT", 30*time.Second),
		BotThinkDelay:   getEnvDuration("BOT_THINK_DELAY", time.Second),
		BotFillDelay:    getEnvDuration("BOT_FILL_DELAY", 10*time.Second),
		ReconnectWindow: getEnvDuration("RECONNECT_WINDOW", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
