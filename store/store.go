// Package store is the persistence boundary: match snapshots in redis behind
// a compare-and-swap write path. The store's object version is a second guard
// under the snapshot's Revision — even a writer that raced past the revision
// check cannot commit over a concurrent write.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/cardtable/tricksync/codec"
	"github.com/cardtable/tricksync/match"
)

// ErrVersionConflict reports a lost CAS race. Callers reload and retry.
var ErrVersionConflict = eris.New("store version conflict")

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create writes a brand-new match. It fails if the match id already exists.
func (s *Store) Create(ctx context.Context, snap match.Snapshot) error {
	bz, err := codec.Encode(snap)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, snapshotKey(snap.MatchID), bz, 0).Result()
	if err != nil {
		return eris.Wrap(err, "")
	}
	if !ok {
		return eris.Wrapf(ErrVersionConflict, "match %s already exists", snap.MatchID)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, versionKey(snap.MatchID), 1, 0)
		pipe.SAdd(ctx, activeSetKey(), snap.MatchID)
		return nil
	})
	return eris.Wrap(err, "")
}

// Snapshot loads a match snapshot along with the store's object version, the
// token CompareAndSet expects back. Both keys come from one MGET: a
// CompareAndSet landing between separate reads would pair a stale snapshot
// with a fresh version token, and the token would then let stale state commit
// over the concurrent write.
func (s *Store) Snapshot(ctx context.Context, matchID string) (match.Snapshot, int64, error) {
	vals, err := s.client.MGet(ctx, snapshotKey(matchID), versionKey(matchID)).Result()
	if err != nil {
		return match.Snapshot{}, 0, eris.Wrap(err, "")
	}
	raw, ok := vals[0].(string)
	if !ok {
		return match.Snapshot{}, 0, eris.Wrapf(match.ErrMatchNotFound, "%s", matchID)
	}
	snap, err := codec.Decode[match.Snapshot]([]byte(raw))
	if err != nil {
		return match.Snapshot{}, 0, err
	}
	rawVersion, ok := vals[1].(string)
	if !ok {
		return match.Snapshot{}, 0, eris.Wrapf(match.ErrMatchNotFound, "%s has no version", matchID)
	}
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return match.Snapshot{}, 0, eris.Wrap(err, "")
	}
	return snap, version, nil
}

// CompareAndSet writes snap only if the stored object version still equals
// expectedVersion, bumping the version in the same transaction. A concurrent
// writer surfaces as ErrVersionConflict.
func (s *Store) CompareAndSet(ctx context.Context, snap match.Snapshot, expectedVersion int64) error {
	bz, err := codec.Encode(snap)
	if err != nil {
		return err
	}
	vkey := versionKey(snap.MatchID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if eris.Is(eris.Cause(err), redis.Nil) {
			return eris.Wrapf(match.ErrMatchNotFound, "%s", snap.MatchID)
		}
		if err != nil {
			return eris.Wrap(err, "")
		}
		if current != expectedVersion {
			return eris.Wrapf(ErrVersionConflict, "version %d, expected %d", current, expectedVersion)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, snapshotKey(snap.MatchID), bz, 0)
			pipe.Incr(ctx, vkey)
			return nil
		})
		return eris.Wrap(err, "")
	}, vkey)
	if eris.Is(eris.Cause(err), redis.TxFailedErr) {
		return eris.Wrap(ErrVersionConflict, "watched key changed")
	}
	return err
}

// SaveRewards records the reward grants of a completed match. The blob lives
// for the same retention window as the rest of the match's keys so endMatch
// sees the grants without re-running the reward hook.
func (s *Store) SaveRewards(ctx context.Context, matchID string, bz []byte, retention time.Duration) error {
	err := s.client.Set(ctx, rewardsKey(matchID), bz, retention).Err()
	return eris.Wrap(err, "")
}

// Rewards loads the reward blob of a completed match. A match that never
// granted anything reports match.ErrMatchNotFound.
func (s *Store) Rewards(ctx context.Context, matchID string) ([]byte, error) {
	bz, err := s.client.Get(ctx, rewardsKey(matchID)).Bytes()
	if eris.Is(eris.Cause(err), redis.Nil) {
		return nil, eris.Wrapf(match.ErrMatchNotFound, "%s has no rewards", matchID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return bz, nil
}

// ActiveMatches lists the matches the timeout sweeper should visit.
func (s *Store) ActiveMatches(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeSetKey()).Result()
	return ids, eris.Wrap(err, "")
}

// Retire removes a completed match from the sweep set and schedules its keys
// for eviction after the retention window.
func (s *Store) Retire(ctx context.Context, matchID string, retention time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, activeSetKey(), matchID)
		pipe.Expire(ctx, snapshotKey(matchID), retention)
		pipe.Expire(ctx, versionKey(matchID), retention)
		return nil
	})
	return eris.Wrap(err, "")
}
