package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/item"
	"github.com/cory-johannsen/derby/internal/game/minigame"
	"github.com/cory-johannsen/derby/internal/game/payout"
	"github.com/cory-johannsen/derby/internal/game/race"
	"github.com/cory-johannsen/derby/internal/game/rng"
	"github.com/cory-johannsen/derby/internal/gameserver"
	"github.com/cory-johannsen/derby/internal/observability"
	"github.com/cory-johannsen/derby/internal/scripting"
	"github.com/cory-johannsen/derby/internal/testutil"
)

// stubRaces records the last call and returns the configured error.
type stubRaces struct {
	err      error
	lastPick int
	lastBet  int64
	caller   auth.Caller
}

func (s *stubRaces) Start(_ context.Context, c auth.Caller, pick int, bet int64) (gameserver.StartResult, error) {
	s.caller, s.lastPick, s.lastBet = c, pick, bet
	if s.err != nil {
		return gameserver.StartResult{}, s.err
	}
	return gameserver.StartResult{State: &race.State{RaceID: "r1", OwnerID: c.UserID}, Points: 10}, nil
}

func (s *stubRaces) ApplyItem(context.Context, auth.Caller, string, string, int) (gameserver.ApplyResult, error) {
	return gameserver.ApplyResult{}, s.err
}

func (s *stubRaces) Settle(_ context.Context, _ auth.Caller, raceID string) (gameserver.SettlementResult, error) {
	if s.err != nil {
		return gameserver.SettlementResult{}, s.err
	}
	return gameserver.SettlementResult{RaceID: raceID, Winner: 2, Pick: 2, Win: true, Delta: 100, Points: 1100}, nil
}

func (s *stubRaces) Get(context.Context, auth.Caller, string) (gameserver.Snapshot, error) {
	return gameserver.Snapshot{}, s.err
}

type stubGames struct{}

func (stubGames) ColorRound(context.Context, auth.Caller, int64) (gameserver.ColorResult, error) {
	return gameserver.ColorResult{}, nil
}

func (stubGames) TreeRound(context.Context, auth.Caller, minigame.TreeBet) (gameserver.TreeResult, error) {
	return gameserver.TreeResult{}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

const testSecret = "handlers-test-secret"

func testVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(config.AuthConfig{Secret: testSecret, Issuer: "derby", TokenTTL: time.Hour})
	require.NoError(t, err)
	return v
}

func token(t *testing.T, v *auth.Verifier, userID string) string {
	t.Helper()
	tok, err := v.Issue(userID, "", auth.RolePlayer)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, body string, mutate func(*http.Request)) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func newStubRouter(t *testing.T, races *stubRaces, ping error) (http.Handler, *auth.Verifier) {
	t.Helper()
	v := testVerifier(t)
	logger := zaptest.NewLogger(t)
	h := New(races, stubGames{}, stubPinger{err: ping}, logger)
	return NewRouter(h, v, "session", prometheus.NewRegistry(), logger), v
}

func TestSession_RequiresToken(t *testing.T) {
	e, _ := newStubRouter(t, &stubRaces{}, nil)
	rec, body := do(t, e, http.MethodPost, "/api/game/horse/start", `{"pick":1,"bet":100}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "unauthenticated", body["kind"])
}

func TestSession_AcceptsBearerAndCookie(t *testing.T) {
	races := &stubRaces{}
	e, v := newStubRouter(t, races, nil)

	rec, body := do(t, e, http.MethodPost, "/api/game/horse/start", `{"pick":3,"bet":700}`, bearer(token(t, v, "alice")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "r1", body["raceId"])
	assert.Equal(t, float64(10), body["points"])
	assert.Equal(t, "alice", races.caller.UserID)
	assert.Equal(t, 3, races.lastPick)
	assert.Equal(t, int64(700), races.lastBet)

	rec, _ = do(t, e, http.MethodPost, "/api/game/horse/start", `{"pick":1,"bet":100}`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "session", Value: token(t, v, "bob")})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", races.caller.UserID)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{errs.New(errs.InvalidWager, "bad"), http.StatusBadRequest, "invalid_wager"},
		{errs.New(errs.InsufficientPoints, "poor"), http.StatusBadRequest, "insufficient_points"},
		{errs.New(errs.Forbidden, "no"), http.StatusForbidden, "forbidden"},
		{errs.New(errs.NotFound, "gone"), http.StatusNotFound, "not_found"},
		{errs.New(errs.TooEarly, "wait"), http.StatusConflict, "too_early"},
		{errs.Wrap(errs.StorageFailure, errors.New("io"), "store"), http.StatusServiceUnavailable, "storage_failure"},
		{errors.New("surprise"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		e, v := newStubRouter(t, &stubRaces{err: tc.err}, nil)
		rec, body := do(t, e, http.MethodPost, "/api/game/horse/finish", `{"raceId":"r1"}`, bearer(token(t, v, "alice")))
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
		assert.Equal(t, false, body["ok"])
		if tc.kind != "" {
			assert.Equal(t, tc.kind, body["kind"])
		}
	}
}

func TestFinish_RequiresRaceID(t *testing.T) {
	e, v := newStubRouter(t, &stubRaces{}, nil)
	rec, body := do(t, e, http.MethodPost, "/api/game/horse/finish", `{}`, bearer(token(t, v, "alice")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "policy_violation", body["kind"])
}

func TestFinish_ReturnsSettlement(t *testing.T) {
	e, v := newStubRouter(t, &stubRaces{}, nil)
	rec, body := do(t, e, http.MethodPost, "/api/game/horse/finish", `{"raceId":"r9"}`, bearer(token(t, v, "alice")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, true, body["win"])
	assert.Equal(t, float64(2), body["winner"])
	assert.Equal(t, float64(100), body["delta"])
	assert.Equal(t, float64(1100), body["points"])
}

func TestMalformedBody(t *testing.T) {
	e, v := newStubRouter(t, &stubRaces{}, nil)
	tests := []struct {
		path string
		kind string
	}{
		{"/api/game/horse/start", "invalid_wager"},
		{"/api/game/color/round", "invalid_wager"},
		{"/api/game/horse/action", "policy_violation"},
		{"/api/game/horse/finish", "policy_violation"},
	}
	for _, tc := range tests {
		rec, body := do(t, e, http.MethodPost, tc.path, `{"raceId":`, bearer(token(t, v, "alice")))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.path)
		assert.Equal(t, tc.kind, body["kind"], tc.path)
	}
}

func TestHealthz(t *testing.T) {
	e, _ := newStubRouter(t, &stubRaces{}, nil)
	rec, body := do(t, e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	e, _ = newStubRouter(t, &stubRaces{}, errors.New("down"))
	rec, _ = do(t, e, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.RacesStarted.Inc()
	logger := zaptest.NewLogger(t)
	e := NewRouter(New(&stubRaces{}, stubGames{}, stubPinger{}, logger), testVerifier(t), "session", reg, logger)

	rec, _ := do(t, e, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "derby_races_started_total 1")
}

// End to end against the real services and an in-process Redis.
func TestRouter_FullRaceFlow(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetBalance(ctx, "alice", 50000))

	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	clock := gameserver.NewManualClock(time.UnixMilli(1_700_000_000_000))
	locks := gameserver.NewLocker()
	gates := scripting.NewManager(logger)
	t.Cleanup(gates.Close)
	opts := gameserver.RaceOptions{
		Rules:     race.Rules{Entities: 5, MinBet: 100, MaxBet: 10000, Countdown: 5 * time.Second, Duration: 9 * time.Second},
		Retention: 10 * time.Minute,
		Policy:    payout.Even,
	}
	races := gameserver.NewRaceService(store, item.Defaults(), gates, opts, clock, locks, metrics, logger)
	games := gameserver.NewMinigameService(store, minigame.Limits{MinBet: 100, MaxBet: 10000}, rng.NewCryptoSource(), locks, metrics, logger)
	v := testVerifier(t)
	e := NewRouter(New(races, games, store, logger), v, "session", reg, logger)
	withAlice := bearer(token(t, v, "alice"))

	rec, body := do(t, e, http.MethodPost, "/api/game/horse/start", `{"pick":2,"bet":1000}`, withAlice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	raceID := body["raceId"].(string)
	assert.Equal(t, float64(49000), body["points"])

	clock.Advance(6 * time.Second)
	rec, body = do(t, e, http.MethodPost, "/api/game/horse/action", `{"raceId":"`+raceID+`","item":"boost_down","target":1}`, withAlice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(41000), body["points"])

	rec, body = do(t, e, http.MethodGet, "/api/game/horse/race/"+raceID, "", withAlice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["phase"])

	rec, body = do(t, e, http.MethodPost, "/api/game/horse/finish", `{"raceId":"`+raceID+`"}`, withAlice)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "too_early", body["kind"])

	clock.Advance(10 * time.Second)
	rec, body = do(t, e, http.MethodPost, "/api/game/horse/finish", `{"raceId":"`+raceID+`"}`, withAlice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	points := body["points"].(float64)
	assert.Contains(t, []float64{41000, 43000}, points)

	balance, err := store.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(points), balance)

	rec, body = do(t, e, http.MethodPost, "/api/game/color/round", `{"amount":100}`, withAlice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, []any{"red", "orange", "yellow", "green"}, body["color"])

	rec, body = do(t, e, http.MethodPost, "/api/game/tree/round", `{"betType":"ODD","amount":100}`, withAlice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	slot := body["finalSlot"].(float64)
	assert.GreaterOrEqual(t, slot, float64(1))
	assert.LessOrEqual(t, slot, float64(6))
}
