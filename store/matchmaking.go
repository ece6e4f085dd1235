package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Matchmaking records: one CAS-guarded waiting slot per game type, and
// TTL'd disconnect markers keyed by player identity.

// waitingChannel is the pub/sub channel matchmaking changes are announced on,
// replacing any in-process registry with a cross-process notification.
const waitingChannel = "mm:events"

// SetWaiting claims the waiting slot for a game type. Exactly one creator
// wins the slot; losers get ErrVersionConflict and should look the slot up.
func (s *Store) SetWaiting(ctx context.Context, gameType, matchID string) error {
	ok, err := s.client.SetNX(ctx, waitingKey(gameType), matchID, 0).Result()
	if err != nil {
		return eris.Wrap(err, "")
	}
	if !ok {
		return eris.Wrapf(ErrVersionConflict, "waiting slot for %s already claimed", gameType)
	}
	s.client.Publish(ctx, waitingChannel, gameType+":"+matchID)
	return nil
}

// Waiting returns the match currently waiting for players of a game type, or
// "" when the slot is empty.
func (s *Store) Waiting(ctx context.Context, gameType string) (string, error) {
	matchID, err := s.client.Get(ctx, waitingKey(gameType)).Result()
	if eris.Is(eris.Cause(err), redis.Nil) {
		return "", nil
	}
	return matchID, eris.Wrap(err, "")
}

// ClearWaiting releases the slot, but only if it still names matchID — a slot
// re-claimed by a newer match is left alone.
func (s *Store) ClearWaiting(ctx context.Context, gameType, matchID string) error {
	key := waitingKey(gameType)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if eris.Is(eris.Cause(err), redis.Nil) {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "")
		}
		if current != matchID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return eris.Wrap(err, "")
	}, key)
	if eris.Is(eris.Cause(err), redis.TxFailedErr) {
		return nil
	}
	return err
}

// SubscribeWaiting returns the pub/sub feed of matchmaking announcements.
func (s *Store) SubscribeWaiting(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, waitingChannel)
}

// MarkDisconnected leaves a marker so the player can rejoin their match
// within the reconnect window; the marker expires with the window.
func (s *Store) MarkDisconnected(ctx context.Context, matchID, playerID string, window time.Duration) error {
	return eris.Wrap(s.client.Set(ctx, disconnectKey(playerID), matchID, window).Err(), "")
}

// DisconnectMarker returns the match a player recently dropped from, or ""
// when the window has lapsed.
func (s *Store) DisconnectMarker(ctx context.Context, playerID string) (string, error) {
	matchID, err := s.client.Get(ctx, disconnectKey(playerID)).Result()
	if eris.Is(eris.Cause(err), redis.Nil) {
		return "", nil
	}
	return matchID, eris.Wrap(err, "")
}

// ClearDisconnect removes a player's marker after a successful rejoin.
func (s *Store) ClearDisconnect(ctx context.Context, playerID string) error {
	return eris.Wrap(s.client.Del(ctx, disconnectKey(playerID)).Err(), "")
}
