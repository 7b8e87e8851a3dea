package gameserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/minigame"
	"github.com/cory-johannsen/derby/internal/game/rng"
	"github.com/cory-johannsen/derby/internal/observability"
	"github.com/cory-johannsen/derby/internal/storage"
)

// ColorResult is returned by ColorRound.
type ColorResult struct {
	minigame.ColorOutcome
	Points int64 `json:"points"`
}

// TreeResult is returned by TreeRound.
type TreeResult struct {
	minigame.TreeOutcome
	Points int64 `json:"points"`
}

// MinigameService plays single-draw rounds against a caller's balance.
type MinigameService struct {
	store   storage.Store
	limits  minigame.Limits
	src     rng.Source
	locks   *Locker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMinigameService creates a MinigameService drawing outcomes from src.
//
// Precondition: all arguments must be non-nil; src must be safe for concurrent use.
func NewMinigameService(
	store storage.Store,
	limits minigame.Limits,
	src rng.Source,
	locks *Locker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *MinigameService {
	return &MinigameService{
		store:   store,
		limits:  limits,
		src:     src,
		locks:   locks,
		metrics: metrics,
		logger:  logger,
	}
}

// ColorRound spins the color strip for amount.
//
// Postcondition: on success the caller's balance changed by exactly the
// outcome's Delta.
func (s *MinigameService) ColorRound(ctx context.Context, caller auth.Caller, amount int64) (ColorResult, error) {
	if err := s.limits.Validate(amount); err != nil {
		return ColorResult{}, s.reject("color", err)
	}
	out := minigame.SpinColor(s.src, amount)
	points, err := s.settle(ctx, caller.UserID, amount, out.Delta)
	if err != nil {
		return ColorResult{}, s.reject("color", err)
	}
	s.metrics.MinigameRounds.WithLabelValues("color", string(out.Color)).Inc()
	s.logger.Info("color round",
		zap.String("user_id", caller.UserID),
		zap.Int64("amount", amount),
		zap.String("color", string(out.Color)),
		zap.Int64("delta", out.Delta),
	)
	return ColorResult{ColorOutcome: out, Points: points}, nil
}

// TreeRound drops a ball down the tree for bet.
//
// Postcondition: on success the caller's balance changed by exactly the
// outcome's Delta.
func (s *MinigameService) TreeRound(ctx context.Context, caller auth.Caller, bet minigame.TreeBet) (TreeResult, error) {
	if err := bet.Validate(s.limits); err != nil {
		return TreeResult{}, s.reject("tree", err)
	}
	out := minigame.DropTree(s.src, bet)
	points, err := s.settle(ctx, caller.UserID, bet.Amount, out.Delta)
	if err != nil {
		return TreeResult{}, s.reject("tree", err)
	}
	s.metrics.MinigameRounds.WithLabelValues("tree", outcome(out.Win)).Inc()
	s.logger.Info("tree round",
		zap.String("user_id", caller.UserID),
		zap.String("bet_type", string(bet.Type)),
		zap.Int("final_slot", out.FinalSlot),
		zap.Int64("delta", out.Delta),
	)
	return TreeResult{TreeOutcome: out, Points: points}, nil
}

// settle applies delta to userID's balance after checking it covers amount.
// The outcome is drawn before the transaction so a retry cannot redraw it.
func (s *MinigameService) settle(ctx context.Context, userID string, amount, delta int64) (int64, error) {
	unlock := s.locks.Lock(UserKey(userID))
	defer unlock()

	points, err := s.store.UpdateBalance(ctx, userID, func(balance int64) (int64, error) {
		if balance < amount {
			return 0, errs.New(errs.InsufficientPoints, "balance %d is below the bet %d", balance, amount)
		}
		return balance + delta, nil
	})
	if err != nil {
		return 0, storeErr(err, "updating balance")
	}
	return points, nil
}

func (s *MinigameService) reject(op string, err error) error {
	s.metrics.RejectedRequests.WithLabelValues(op, string(errs.KindOf(err))).Inc()
	return err
}
