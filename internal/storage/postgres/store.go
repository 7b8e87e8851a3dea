package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/derby/internal/game/race"
	"github.com/cory-johannsen/derby/internal/storage"
)

// Store is a PostgreSQL-backed storage.Store. Balances live in users and
// race documents in race_states as JSONB.
type Store struct {
	pool  *Pool
	db    *pgxpool.Pool
	clock func() time.Time
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store backed by the given pool.
//
// Precondition: pool must be open and migrated.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool, db: pool.DB(), clock: time.Now}
}

// GetBalance implements storage.Store.
func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	var points int64
	err := s.db.QueryRow(ctx, `SELECT points FROM users WHERE id = $1`, userID).Scan(&points)
	if err != nil {
		return 0, notFound(err, "user %q", userID)
	}
	return points, nil
}

// SetBalance implements storage.Store.
func (s *Store) SetBalance(ctx context.Context, userID string, points int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, points) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET points = EXCLUDED.points, updated_at = NOW()`,
		userID, points,
	)
	if err != nil {
		return fmt.Errorf("writing points for %q: %w", userID, err)
	}
	return nil
}

// GetRaceState implements storage.Store. Expired rows are treated as absent.
func (s *Store) GetRaceState(ctx context.Context, raceID string) (*race.State, error) {
	return scanRace(s.db.QueryRow(ctx,
		`SELECT state FROM race_states WHERE race_id = $1 AND expires_at > $2`,
		raceID, s.clock(),
	), raceID)
}

// PutRaceState implements storage.Store.
func (s *Store) PutRaceState(ctx context.Context, st *race.State, ttl time.Duration) error {
	return putRace(ctx, s.db, st, s.clock().Add(ttl))
}

// UpdateRace implements storage.Store. Rows are locked user first, race second.
func (s *Store) UpdateRace(ctx context.Context, raceID, userID string, ttl time.Duration, fn storage.UpdateFunc) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var points int64
		err := tx.QueryRow(ctx, `SELECT points FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&points)
		if err != nil {
			return notFound(err, "user %q", userID)
		}
		current, err := scanRace(tx.QueryRow(ctx,
			`SELECT state FROM race_states WHERE race_id = $1 AND expires_at > $2 FOR UPDATE`,
			raceID, s.clock(),
		), raceID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		next, nextPoints, err := fn(current, points)
		if err != nil {
			return err
		}
		if nextPoints != points {
			if _, err := tx.Exec(ctx,
				`UPDATE users SET points = $2, updated_at = NOW() WHERE id = $1`,
				userID, nextPoints,
			); err != nil {
				return fmt.Errorf("writing points for %q: %w", userID, err)
			}
		}
		return putRace(ctx, tx, next, s.clock().Add(ttl))
	})
}

// UpdateBalance implements storage.Store.
func (s *Store) UpdateBalance(ctx context.Context, userID string, fn storage.BalanceFunc) (int64, error) {
	var stored int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT points FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&stored)
		if err != nil {
			return notFound(err, "user %q", userID)
		}
		next, err := fn(stored)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET points = $2, updated_at = NOW() WHERE id = $1`,
			userID, next,
		); err != nil {
			return fmt.Errorf("writing points for %q: %w", userID, err)
		}
		stored = next
		return nil
	})
	return stored, err
}

// PurgeExpired deletes race rows whose retention has elapsed and returns how
// many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM race_states WHERE expires_at <= $1`, s.clock())
	if err != nil {
		return 0, fmt.Errorf("purging expired races: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Health(ctx, 2*time.Second)
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// inTx runs fn in a transaction. storage.ErrNoop rolls back and reports success.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.db, fn)
	if errors.Is(err, storage.ErrNoop) {
		return nil
	}
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func putRace(ctx context.Context, db execer, st *race.State, expiresAt time.Time) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding race %q: %w", st.RaceID, err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO race_states (race_id, owner_id, state, settled, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (race_id) DO UPDATE
		 SET state = EXCLUDED.state, settled = EXCLUDED.settled,
		     expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		st.RaceID, st.OwnerID, payload, st.Settled, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("writing race %q: %w", st.RaceID, err)
	}
	return nil
}

func scanRace(row pgx.Row, raceID string) (*race.State, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return nil, notFound(err, "race %q", raceID)
	}
	var st race.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("decoding race %q: %w: %w", raceID, storage.ErrCorrupt, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("race %q: %w: %w", raceID, storage.ErrCorrupt, err)
	}
	return &st, nil
}

// notFound maps pgx.ErrNoRows to storage.ErrNotFound and wraps anything else.
func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("querying %s: %w", what, err)
}

// isSerializationFailure reports contention: SQLSTATE 40001, 40P01
// (deadlock), or 55P03 (lock_timeout expired).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}
