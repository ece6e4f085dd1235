// Package statsd is a helper package that wraps some common statsd methods.
// It hides the datadog dependency so a future metrics migration only touches
// this file.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitApplyStat times one stage of the atomic-apply write path.
func EmitApplyStat(start time.Time, stage string) {
	duration := time.Since(start)
	err := Client().Timing("apply", duration, []string{stage}, 1)
	if err != nil {
		log.Logger.Warn().Msgf("failed to emit apply stat: %v", err)
	}
}

// EmitSweepStat times one pass of the timeout/bot sweeper.
func EmitSweepStat(start time.Time, stage string) {
	duration := time.Since(start)
	err := Client().Timing("sweep", duration, []string{stage}, 1)
	if err != nil {
		log.Logger.Warn().Msgf("failed to emit sweep stat: %v", err)
	}
}

// IncrConflict counts lost CAS races, a proxy for per-match contention.
func IncrConflict(op string) {
	if err := Client().Incr("revision_conflict", []string{op}, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit conflict stat: %v", err)
	}
}

func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace("tricksync"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return err
	}
	// Success! replace the global client
	client = newClient
	return nil
}
