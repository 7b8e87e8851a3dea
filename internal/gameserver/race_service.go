package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/item"
	"github.com/cory-johannsen/derby/internal/game/payout"
	"github.com/cory-johannsen/derby/internal/game/race"
	"github.com/cory-johannsen/derby/internal/game/rng"
	"github.com/cory-johannsen/derby/internal/observability"
	"github.com/cory-johannsen/derby/internal/scripting"
	"github.com/cory-johannsen/derby/internal/storage"
)

// RaceOptions are the race rules a RaceService enforces.
type RaceOptions struct {
	Rules     race.Rules
	Retention time.Duration
	Policy    payout.Policy
	// AllowSpectatorItems lets callers other than the owner buy items.
	AllowSpectatorItems bool
}

// RaceOptionsFromConfig converts validated configuration into RaceOptions.
//
// Postcondition: Returns options or an error for an unparsable multiplier.
func RaceOptionsFromConfig(cfg config.RaceConfig) (RaceOptions, error) {
	policy, err := payout.ParsePolicy(cfg.PayoutMultiplier)
	if err != nil {
		return RaceOptions{}, err
	}
	return RaceOptions{
		Rules: race.Rules{
			Entities:  cfg.Entities,
			MinBet:    cfg.MinBet,
			MaxBet:    cfg.MaxBet,
			Countdown: cfg.Countdown,
			Duration:  cfg.Duration,
		},
		Retention:           cfg.Retention,
		Policy:              policy,
		AllowSpectatorItems: cfg.AllowSpectatorItems,
	}, nil
}

// StartResult is returned by Start.
type StartResult struct {
	State  *race.State `json:"state"`
	Points int64       `json:"points"`
}

// ApplyResult is returned by ApplyItem.
type ApplyResult struct {
	State   *race.State          `json:"state"`
	Effects []race.AppliedEffect `json:"effects"`
	Points  int64                `json:"points"`
}

// SettlementResult is returned by Settle. Replayed is set when the race was
// already settled and the stored outcome is returned without a write.
type SettlementResult struct {
	RaceID   string `json:"raceId"`
	Pick     int    `json:"pick"`
	Winner   int    `json:"winner"`
	Win      bool   `json:"win"`
	Delta    int64  `json:"delta"`
	Points   int64  `json:"points"`
	Replayed bool   `json:"replayed"`
}

// Snapshot is a read-only view of a race at one instant.
type Snapshot struct {
	State     *race.State       `json:"state"`
	Phase     race.Phase        `json:"phase"`
	Elapsed   float64           `json:"elapsed"`
	Remaining float64           `json:"remaining"`
	Entities  []race.EntitySpec `json:"entities"`
	Standings []race.Standing   `json:"standings"`
}

// RaceService creates races, sells in-race items, and settles wagers.
//
// Every balance change is written in the same store transaction as the race
// state that records it.
type RaceService struct {
	store   storage.Store
	items   *item.Registry
	gates   *scripting.Manager
	opts    RaceOptions
	clock   Clock
	locks   *Locker
	metrics *observability.Metrics
	logger  *zap.Logger

	newID   func() string
	newSeed func() uint32
	curves  func() item.CurveSource
}

// NewRaceService creates a RaceService.
//
// Precondition: all arguments must be non-nil; opts.Rules.Entities >= 1.
// Postcondition: Returns a RaceService drawing race ids from uuid and seeds
// from crypto/rand.
func NewRaceService(
	store storage.Store,
	items *item.Registry,
	gates *scripting.Manager,
	opts RaceOptions,
	clock Clock,
	locks *Locker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RaceService {
	return &RaceService{
		store:   store,
		items:   items,
		gates:   gates,
		opts:    opts,
		clock:   clock,
		locks:   locks,
		metrics: metrics,
		logger:  logger,
		newID:   uuid.NewString,
		newSeed: rng.FreshSeed,
		curves: func() item.CurveSource {
			return race.NewGenerator(rng.NewCryptoSource())
		},
	}
}

// Start validates the wager, generates a race, and deducts the stake.
//
// Postcondition: on success the race is stored and the caller's balance is
// reduced by bet in one transaction. On error nothing is written.
func (s *RaceService) Start(ctx context.Context, caller auth.Caller, pick int, bet int64) (StartResult, error) {
	now := s.clock.Now()
	st, err := race.New(s.newID(), caller.UserID, pick, bet, s.opts.Rules, s.newSeed(), now)
	if err != nil {
		return StartResult{}, s.reject("start", err)
	}

	unlock := s.locks.Lock(RaceKey(st.RaceID), UserKey(caller.UserID))
	defer unlock()

	var points int64
	err = s.store.UpdateRace(ctx, st.RaceID, caller.UserID, s.opts.Retention,
		func(cur *race.State, balance int64) (*race.State, int64, error) {
			if cur != nil {
				return nil, 0, errs.New(errs.StorageFailure, "race id %s already in use", st.RaceID)
			}
			if balance < bet {
				return nil, 0, errs.New(errs.InsufficientPoints, "balance %d is below the bet %d", balance, bet)
			}
			points = balance - bet
			return st, points, nil
		})
	if err != nil {
		return StartResult{}, s.reject("start", storeErr(err, "starting race"))
	}

	s.metrics.RacesStarted.Inc()
	s.metrics.PointsWagered.Add(float64(bet))
	s.logger.Info("race started",
		zap.String("race_id", st.RaceID),
		zap.String("user_id", caller.UserID),
		zap.Int("pick", pick),
		zap.Int64("bet", bet),
		zap.Uint32("seed", st.Seed),
	)
	return StartResult{State: st, Points: points}, nil
}

// ApplyItem buys itemID for the caller and applies its effect to target.
//
// Precondition: target is ignored for untargeted items.
// Postcondition: on success the item cost is deducted from the caller and the
// effect records appended in one transaction. Every rule is checked before
// anything is written.
func (s *RaceService) ApplyItem(ctx context.Context, caller auth.Caller, raceID, itemID string, target int) (ApplyResult, error) {
	unlock := s.locks.Lock(RaceKey(raceID), UserKey(caller.UserID))
	defer unlock()

	now := s.clock.Now()
	st, err := s.store.GetRaceState(ctx, raceID)
	if err != nil {
		return ApplyResult{}, s.reject("apply_item", storeErr(err, "loading race %s", raceID))
	}
	isOwner := st.OwnerID == caller.UserID
	if !isOwner && !s.opts.AllowSpectatorItems {
		return ApplyResult{}, s.reject("apply_item", errs.New(errs.Forbidden, "only the race owner can use items"))
	}
	def, ok := s.items.Get(itemID)
	if !ok {
		return ApplyResult{}, s.reject("apply_item", errs.New(errs.PolicyViolation, "unknown item %q", itemID))
	}
	if err := def.Check(st, caller.UserID, target, now); err != nil {
		return ApplyResult{}, s.reject("apply_item", err)
	}
	if s.gates.HasGate(def.ID) {
		balance, err := s.store.GetBalance(ctx, caller.UserID)
		if err != nil {
			return ApplyResult{}, s.reject("apply_item", storeErr(err, "loading balance"))
		}
		if !s.gates.Allow(s.gateContext(st, def, caller.UserID, isOwner, target, balance, now)) {
			return ApplyResult{}, s.reject("apply_item", errs.New(errs.PolicyViolation, "%s is not available right now", def.ID))
		}
	}

	curves := s.curves()
	var res ApplyResult
	err = s.store.UpdateRace(ctx, raceID, caller.UserID, s.opts.Retention,
		func(cur *race.State, balance int64) (*race.State, int64, error) {
			if cur == nil {
				return nil, 0, errs.New(errs.NotFound, "race %s not found", raceID)
			}
			if err := def.Check(cur, caller.UserID, target, now); err != nil {
				return nil, 0, err
			}
			if balance < def.Cost {
				return nil, 0, errs.New(errs.InsufficientPoints, "balance %d is below the item cost %d", balance, def.Cost)
			}
			next := cur.Clone()
			next.Advance(now)
			effects := def.Effects(next, caller.UserID, target, now, curves)
			next.AppliedEffects = append(next.AppliedEffects, effects...)
			res = ApplyResult{State: next, Effects: effects, Points: balance - def.Cost}
			return next, res.Points, nil
		})
	if err != nil {
		return ApplyResult{}, s.reject("apply_item", storeErr(err, "applying %s", def.ID))
	}

	s.metrics.ItemsApplied.WithLabelValues(def.ID).Inc()
	s.logger.Info("item applied",
		zap.String("race_id", raceID),
		zap.String("user_id", caller.UserID),
		zap.String("item", def.ID),
		zap.Int("target", target),
		zap.Int64("cost", def.Cost),
	)
	return res, nil
}

func (s *RaceService) gateContext(st *race.State, def *item.Def, callerID string, isOwner bool, target int, balance int64, now time.Time) scripting.GateContext {
	elapsed := st.ElapsedSeconds(now)
	used := 0
	for _, e := range st.AppliedEffects {
		if e.CallerID == callerID {
			used++
		}
	}
	return scripting.GateContext{
		ItemID:       def.ID,
		CallerID:     callerID,
		IsOwner:      isOwner,
		Pick:         st.Pick,
		Target:       target,
		Entities:     st.Count(),
		Elapsed:      elapsed,
		Remaining:    st.RaceSeconds() - elapsed,
		Balance:      balance,
		UsedByCaller: used,
	}
}

// Settle pays out a finished race exactly once.
//
// Postcondition: the first successful call writes the outcome and the owner's
// credit in one transaction; later calls return that outcome with Replayed
// set and write nothing.
func (s *RaceService) Settle(ctx context.Context, caller auth.Caller, raceID string) (SettlementResult, error) {
	st, err := s.store.GetRaceState(ctx, raceID)
	if err != nil {
		return SettlementResult{}, s.reject("settle", storeErr(err, "loading race %s", raceID))
	}
	if st.OwnerID != caller.UserID {
		return SettlementResult{}, s.reject("settle", errs.New(errs.Forbidden, "only the race owner can settle"))
	}

	unlock := s.locks.Lock(RaceKey(raceID), UserKey(st.OwnerID))
	defer unlock()

	now := s.clock.Now()
	var res SettlementResult
	err = s.store.UpdateRace(ctx, raceID, st.OwnerID, s.opts.Retention,
		func(cur *race.State, balance int64) (*race.State, int64, error) {
			if cur == nil {
				return nil, 0, errs.New(errs.NotFound, "race %s not found", raceID)
			}
			if cur.Settled {
				res = replayed(cur)
				return nil, 0, storage.ErrNoop
			}
			if now.UnixMilli() < cur.RaceEndsAt {
				return nil, 0, errs.New(errs.TooEarly, "race %s ends in %dms", raceID, cur.RaceEndsAt-now.UnixMilli())
			}
			winner := race.ResolveWinner(cur)
			win := winner == cur.Pick
			delta := s.opts.Policy.Delta(cur.Bet, win)
			after := balance + s.opts.Policy.Credit(cur.Bet, win)
			next := cur.Clone()
			next.Settle(winner, delta, after)
			res = SettlementResult{
				RaceID: raceID,
				Pick:   cur.Pick,
				Winner: winner,
				Win:    win,
				Delta:  delta,
				Points: after,
			}
			return next, after, nil
		})
	if err != nil {
		return SettlementResult{}, s.reject("settle", storeErr(err, "settling race %s", raceID))
	}

	if res.Replayed {
		s.metrics.SettleReplays.Inc()
		s.logger.Debug("race already settled", zap.String("race_id", raceID))
		return res, nil
	}
	s.metrics.Settlements.WithLabelValues(outcome(res.Win)).Inc()
	s.logger.Info("race settled",
		zap.String("race_id", raceID),
		zap.String("user_id", caller.UserID),
		zap.Int("winner", res.Winner),
		zap.Int64("delta", res.Delta),
		zap.Int64("points", res.Points),
	)
	return res, nil
}

// replayed reports a stored outcome. Stores validate documents on read, so a
// settled state always carries winner, delta, and afterPoints.
func replayed(st *race.State) SettlementResult {
	return SettlementResult{
		RaceID:   st.RaceID,
		Pick:     st.Pick,
		Winner:   *st.Winner,
		Win:      *st.Winner == st.Pick,
		Delta:    *st.Delta,
		Points:   *st.AfterPoints,
		Replayed: true,
	}
}

// Get returns a snapshot of the race for the owner, for any caller who has
// applied an item to it, or for manager and display roles.
func (s *RaceService) Get(ctx context.Context, caller auth.Caller, raceID string) (Snapshot, error) {
	st, err := s.store.GetRaceState(ctx, raceID)
	if err != nil {
		return Snapshot{}, s.reject("get", storeErr(err, "loading race %s", raceID))
	}
	if !canView(st, caller) {
		return Snapshot{}, s.reject("get", errs.New(errs.Forbidden, "caller is not a participant of race %s", raceID))
	}
	now := s.clock.Now()
	st.Advance(now)
	elapsed := st.ElapsedSeconds(now)
	return Snapshot{
		State:     st,
		Phase:     st.Phase,
		Elapsed:   elapsed,
		Remaining: st.RaceSeconds() - elapsed,
		Entities:  st.CurrentEntities(now.UnixMilli()),
		Standings: race.Standings(st, now),
	}, nil
}

func canView(st *race.State, caller auth.Caller) bool {
	if st.OwnerID == caller.UserID || caller.Role == auth.RoleManager || caller.Role == auth.RoleDisplay {
		return true
	}
	for _, e := range st.AppliedEffects {
		if e.CallerID == caller.UserID {
			return true
		}
	}
	return false
}

// reject counts a failed operation by error kind and returns err.
func (s *RaceService) reject(op string, err error) error {
	s.metrics.RejectedRequests.WithLabelValues(op, string(errs.KindOf(err))).Inc()
	return err
}

func outcome(win bool) string {
	if win {
		return "win"
	}
	return "loss"
}

// storeErr classifies a store error. Service errors raised inside a
// transaction pass through unchanged.
func storeErr(err error, format string, args ...any) error {
	if errs.KindOf(err) != "" {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, storage.ErrNotFound) {
		return errs.Wrap(errs.NotFound, err, "%s", msg)
	}
	return errs.Wrap(errs.StorageFailure, err, "%s", msg)
}
