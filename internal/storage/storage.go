// Package storage defines the persistence contract for point balances and
// race state. Implementations live in the redisstore and postgres packages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cory-johannsen/derby/internal/game/race"
)

// ErrNotFound is returned when a user or race does not exist (or has expired).
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when an optimistic transaction keeps losing races
// with concurrent writers and exhausts its retries. Callers may retry.
var ErrConflict = errors.New("storage: transaction conflict")

// ErrCorrupt is returned when a stored record decodes but fails validation.
var ErrCorrupt = errors.New("storage: corrupt record")

// ErrNoop may be returned by an UpdateFunc or BalanceFunc to end the
// transaction without writing anything. The store then returns nil.
var ErrNoop = errors.New("storage: no change")

// UpdateFunc computes the next race state and the next balance of the
// transaction's user. state is nil when the race does not exist. It may run
// more than once when a transaction is retried, so it must not have side
// effects beyond assigning captured results.
type UpdateFunc func(state *race.State, points int64) (*race.State, int64, error)

// BalanceFunc computes the next balance from the current one. Like
// UpdateFunc it may run more than once.
type BalanceFunc func(points int64) (int64, error)

// Store persists balances and race state.
//
// Every balance change made through UpdateRace or UpdateBalance is a
// read-compute-write inside one transaction: no concurrent writer can make
// the computed balance stale.
type Store interface {
	// GetBalance returns the user's points, or ErrNotFound.
	GetBalance(ctx context.Context, userID string) (int64, error)
	// SetBalance unconditionally overwrites the user's points, creating the user.
	SetBalance(ctx context.Context, userID string, points int64) error
	// GetRaceState returns the stored race, or ErrNotFound.
	GetRaceState(ctx context.Context, raceID string) (*race.State, error)
	// PutRaceState writes s with the given retention.
	PutRaceState(ctx context.Context, s *race.State, ttl time.Duration) error
	// UpdateRace atomically writes the race state and userID's balance that
	// fn computes from their current values. userID must exist.
	UpdateRace(ctx context.Context, raceID, userID string, ttl time.Duration, fn UpdateFunc) error
	// UpdateBalance atomically replaces userID's balance with fn's result and
	// returns the stored value.
	UpdateBalance(ctx context.Context, userID string, fn BalanceFunc) (int64, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the store's resources.
	Close() error
}

// Purger is implemented by stores whose expired races must be removed
// explicitly rather than by key expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
