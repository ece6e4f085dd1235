package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/codec"
)

// DefaultCap bounds each match's event list. One trick produces at most a
// handful of events, so 128 comfortably covers several tricks of catch-up.
const DefaultCap = 128

type Log struct {
	client *redis.Client
	cap    int64
}

func New(client *redis.Client, capacity int64) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Log{client: client, cap: capacity}
}

func listKey(matchID string) string {
	return fmt.Sprintf("match:%s:events", matchID)
}

func counterKey(matchID string) string {
	return fmt.Sprintf("match:%s:eventid", matchID)
}

// Append assigns strictly increasing event ids and pushes the events onto the
// match's list, trimming to the cap. Events must share the given matchID.
func (l *Log) Append(ctx context.Context, matchID string, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		id, err := l.client.Incr(ctx, counterKey(matchID)).Result()
		if err != nil {
			return eris.Wrap(err, "")
		}
		ev.EventID = id
	}
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range events {
			bz, err := codec.Encode(ev)
			if err != nil {
				return err
			}
			pipe.RPush(ctx, listKey(matchID), bz)
		}
		pipe.LTrim(ctx, listKey(matchID), -l.cap, -1)
		return nil
	})
	return eris.Wrap(err, "")
}

// Since returns the retained events with EventID > sinceEventID, in order,
// along with the latest assigned event id. A caller whose watermark predates
// the oldest retained event sees a gap: len(events) returned will not bridge
// sinceEventID+1, and it should fall back to a snapshot fetch.
func (l *Log) Since(ctx context.Context, matchID string, sinceEventID int64) ([]Event, int64, error) {
	latest, err := l.client.Get(ctx, counterKey(matchID)).Int64()
	if eris.Is(eris.Cause(err), redis.Nil) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, eris.Wrap(err, "")
	}
	if latest <= sinceEventID {
		return nil, latest, nil
	}
	raw, err := l.client.LRange(ctx, listKey(matchID), 0, -1).Result()
	if err != nil {
		return nil, latest, eris.Wrap(err, "")
	}
	events := make([]Event, 0, len(raw))
	for _, bz := range raw {
		ev, err := codec.Decode[Event]([]byte(bz))
		if err != nil {
			return nil, latest, err
		}
		if ev.EventID > sinceEventID {
			events = append(events, ev)
		}
	}
	return events, latest, nil
}

// Trimmed reports whether events between sinceEventID and the returned batch
// were dropped by the cap: the batch no longer starts at sinceEventID+1.
func Trimmed(sinceEventID int64, events []Event) bool {
	if len(events) == 0 {
		return false
	}
	return events[0].EventID != sinceEventID+1
}

// Expire schedules a retired match's log for eviction.
func (l *Log) Expire(ctx context.Context, matchID string, retention time.Duration) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, listKey(matchID), retention)
		pipe.Expire(ctx, counterKey(matchID), retention)
		return nil
	})
	return eris.Wrap(err, "")
}
