// Package redisstore implements storage.Store on Redis with go-redis.
//
// Layout: each user is a hash "user:{id}" with a "points" field; each race is
// a JSON string "horse:race:{id}" with a TTL; every balance write also updates
// the "ranking:points" sorted set.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/game/race"
	"github.com/cory-johannsen/derby/internal/storage"
)

const (
	pointsField = "points"
	rankingKey  = "ranking:points"
)

func userKey(id string) string { return "user:" + id }
func raceKey(id string) string { return "horse:race:" + id }

// reader is the read subset shared by clients and transactions.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

// Store is a Redis-backed storage.Store.
type Store struct {
	rdb        redis.UniversalClient
	maxRetries int
}

var _ storage.Store = (*Store)(nil)

// New connects to Redis and verifies the connection.
//
// Precondition: cfg.Addr must be non-empty; maxRetries >= 1.
// Postcondition: Returns a connected Store or a non-nil error.
func New(ctx context.Context, cfg config.RedisConfig, maxRetries int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, maxRetries), nil
}

// NewWithClient wraps an existing client.
//
// Precondition: rdb must be non-nil.
func NewWithClient(rdb redis.UniversalClient, maxRetries int) *Store {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Store{rdb: rdb, maxRetries: maxRetries}
}

func readPoints(ctx context.Context, r reader, userID string) (int64, error) {
	raw, err := r.HGet(ctx, userKey(userID), pointsField).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("user %q: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading points for %q: %w", userID, err)
	}
	points, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed points %q for %q: %w", raw, userID, err)
	}
	return points, nil
}

func readRace(ctx context.Context, r reader, raceID string) (*race.State, error) {
	raw, err := r.Get(ctx, raceKey(raceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("race %q: %w", raceID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading race %q: %w", raceID, err)
	}
	var s race.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding race %q: %w: %w", raceID, storage.ErrCorrupt, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("race %q: %w: %w", raceID, storage.ErrCorrupt, err)
	}
	return &s, nil
}

func writePoints(ctx context.Context, pipe redis.Pipeliner, userID string, points int64) {
	pipe.HSet(ctx, userKey(userID), pointsField, points)
	pipe.ZAdd(ctx, rankingKey, redis.Z{Score: float64(points), Member: userID})
}

// GetBalance implements storage.Store.
func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	return readPoints(ctx, s.rdb, userID)
}

// SetBalance implements storage.Store.
func (s *Store) SetBalance(ctx context.Context, userID string, points int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writePoints(ctx, pipe, userID, points)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing points for %q: %w", userID, err)
	}
	return nil
}

// GetRaceState implements storage.Store.
func (s *Store) GetRaceState(ctx context.Context, raceID string) (*race.State, error) {
	return readRace(ctx, s.rdb, raceID)
}

// PutRaceState implements storage.Store.
func (s *Store) PutRaceState(ctx context.Context, st *race.State, ttl time.Duration) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding race %q: %w", st.RaceID, err)
	}
	if err := s.rdb.Set(ctx, raceKey(st.RaceID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("writing race %q: %w", st.RaceID, err)
	}
	return nil
}

// UpdateRace implements storage.Store with WATCH on the race and user keys.
func (s *Store) UpdateRace(ctx context.Context, raceID, userID string, ttl time.Duration, fn storage.UpdateFunc) error {
	rk, uk := raceKey(raceID), userKey(userID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		current, err := readRace(ctx, tx, raceID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		points, err := readPoints(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, nextPoints, err := fn(current, points)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding race %q: %w", raceID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, payload, ttl)
			if nextPoints != points {
				writePoints(ctx, pipe, userID, nextPoints)
			}
			return nil
		})
		return err
	}, rk, uk)
}

// UpdateBalance implements storage.Store with WATCH on the user key.
func (s *Store) UpdateBalance(ctx context.Context, userID string, fn storage.BalanceFunc) (int64, error) {
	var stored int64
	err := s.watch(ctx, func(tx *redis.Tx) error {
		points, err := readPoints(ctx, tx, userID)
		if err != nil {
			return err
		}
		stored = points
		next, err := fn(points)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			writePoints(ctx, pipe, userID, next)
			return nil
		})
		if err == nil {
			stored = next
		}
		return err
	}, userKey(userID))
	return stored, err
}

// watch runs txf under WATCH, retrying when a watched key changes.
func (s *Store) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, storage.ErrNoop):
			return nil
		default:
			return err
		}
	}
	return storage.ErrConflict
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.rdb.Close()
}
