package redisstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/derby/internal/game/race"
	"github.com/cory-johannsen/derby/internal/storage"
	"github.com/cory-johannsen/derby/internal/storage/redisstore"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := redisstore.NewWithClient(rdb, 8)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sampleRace(t *testing.T, id, owner string) *race.State {
	t.Helper()
	rules := race.Rules{Entities: 5, MinBet: 1, MaxBet: 100000, Countdown: 5 * time.Second, Duration: 9 * time.Second}
	s, err := race.New(id, owner, 2, 500, rules, 42, time.UnixMilli(1_700_000_000_000))
	require.NoError(t, err)
	return s
}

func TestBalance_RoundTripAndRanking(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, err := s.GetBalance(ctx, "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetBalance(ctx, "alice", 1200))
	points, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), points)

	assert.Equal(t, "1200", mr.HGet("user:alice", "points"))
	score, err := mr.ZScore("ranking:points", "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(1200), score)
}

func TestRaceState_RoundTripWithTTL(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	st := sampleRace(t, "r1", "alice")

	require.NoError(t, s.PutRaceState(ctx, st, 10*time.Minute))
	got, err := s.GetRaceState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, st, got)
	assert.Equal(t, 10*time.Minute, mr.TTL("horse:race:r1"))

	mr.FastForward(11 * time.Minute)
	_, err = s.GetRaceState(ctx, "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateRace_WritesStateAndBalance(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "alice", 1000))
	st := sampleRace(t, "r1", "alice")

	err := s.UpdateRace(ctx, "r1", "alice", time.Minute, func(cur *race.State, points int64) (*race.State, int64, error) {
		assert.Nil(t, cur)
		assert.Equal(t, int64(1000), points)
		return st, points - st.Bet, nil
	})
	require.NoError(t, err)

	points, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), points)
	got, err := s.GetRaceState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
}

func TestUpdateRace_UnknownUser(t *testing.T) {
	s, _ := newStore(t)
	err := s.UpdateRace(context.Background(), "r1", "ghost", time.Minute, func(cur *race.State, points int64) (*race.State, int64, error) {
		t.Fatal("fn must not run for an unknown user")
		return nil, 0, nil
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateRace_FnErrorLeavesStoreUntouched(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "alice", 1000))
	boom := errors.New("boom")

	err := s.UpdateRace(ctx, "r1", "alice", time.Minute, func(*race.State, int64) (*race.State, int64, error) {
		return nil, 0, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetRaceState(ctx, "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	points, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), points)
}

func TestUpdateRace_NoopIsSuccess(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "alice", 1000))

	err := s.UpdateRace(ctx, "r1", "alice", time.Minute, func(*race.State, int64) (*race.State, int64, error) {
		return nil, 0, storage.ErrNoop
	})
	assert.NoError(t, err)
	_, err = s.GetRaceState(ctx, "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateBalance_ConcurrentIncrementsAreNotLost(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := redisstore.NewWithClient(rdb, 1000)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "alice", 0))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateBalance(ctx, "alice", func(p int64) (int64, error) { return p + 10, nil })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	points, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*10), points)
}

func TestUpdateBalance_ReturnsStoredValue(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "bob", 50))

	got, err := s.UpdateBalance(ctx, "bob", func(p int64) (int64, error) { return p * 2, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	got, err = s.UpdateBalance(ctx, "bob", func(int64) (int64, error) { return 0, storage.ErrNoop })
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)
}

func TestPing(t *testing.T) {
	s, _ := newStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestGetRaceState_RejectsCorruptDocuments(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "alice", 1000))

	docs := map[string]string{
		"garbage":         `{not json`,
		"settled-no-sums": `{"raceId":"settled-no-sums","ownerId":"alice","pick":1,"bet":500,"entityCount":5,"phase":"finished","settled":true}`,
		"cubic":           `{"raceId":"cubic","ownerId":"alice","pick":1,"bet":500,"phase":"running","entities":[{"id":1,"curveFamily":"cubic","curveParams":{}}]}`,
	}
	for id, doc := range docs {
		require.NoError(t, mr.Set("horse:race:"+id, doc))

		_, err := s.GetRaceState(ctx, id)
		assert.ErrorIs(t, err, storage.ErrCorrupt, id)

		called := false
		err = s.UpdateRace(ctx, id, "alice", time.Minute, func(cur *race.State, p int64) (*race.State, int64, error) {
			called = true
			return cur, p + 500, nil
		})
		assert.ErrorIs(t, err, storage.ErrCorrupt, id)
		assert.False(t, called, id)
	}
	points, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), points)
}
