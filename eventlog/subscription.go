package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Subscription cursors: the last event id delivered to each subscriber,
// keyed by a uuid the subscriber carries across reconnects. Cursors refresh
// their TTL on every save, so abandoned subscriptions age out on their own.

const cursorTTL = 24 * time.Hour

func cursorKey(matchID, subID string) string {
	return fmt.Sprintf("match:%s:sub:%s", matchID, subID)
}

// Cursor returns the saved watermark for a subscription, or 0 when the
// subscription is unknown (fresh or expired).
func (l *Log) Cursor(ctx context.Context, matchID, subID string) (int64, error) {
	id, err := l.client.Get(ctx, cursorKey(matchID, subID)).Int64()
	if eris.Is(eris.Cause(err), redis.Nil) {
		return 0, nil
	}
	return id, eris.Wrap(err, "")
}

// SaveCursor records the watermark a subscriber has consumed through.
func (l *Log) SaveCursor(ctx context.Context, matchID, subID string, eventID int64) error {
	return eris.Wrap(l.client.Set(ctx, cursorKey(matchID, subID), eventID, cursorTTL).Err(), "")
}

// DropCursor forgets a subscription.
func (l *Log) DropCursor(ctx context.Context, matchID, subID string) error {
	return eris.Wrap(l.client.Del(ctx, cursorKey(matchID, subID)).Err(), "")
}
