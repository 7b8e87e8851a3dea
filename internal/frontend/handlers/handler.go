// Package handlers serves the game HTTP API with echo.
package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/game/minigame"
	"github.com/cory-johannsen/derby/internal/gameserver"
)

// RaceAPI is the race service surface the handlers call.
type RaceAPI interface {
	Start(ctx context.Context, caller auth.Caller, pick int, bet int64) (gameserver.StartResult, error)
	ApplyItem(ctx context.Context, caller auth.Caller, raceID, itemID string, target int) (gameserver.ApplyResult, error)
	Settle(ctx context.Context, caller auth.Caller, raceID string) (gameserver.SettlementResult, error)
	Get(ctx context.Context, caller auth.Caller, raceID string) (gameserver.Snapshot, error)
}

// MinigameAPI is the minigame service surface the handlers call.
type MinigameAPI interface {
	ColorRound(ctx context.Context, caller auth.Caller, amount int64) (gameserver.ColorResult, error)
	TreeRound(ctx context.Context, caller auth.Caller, bet minigame.TreeBet) (gameserver.TreeResult, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	races  RaceAPI
	games  MinigameAPI
	health Pinger
	logger *zap.Logger
}

// New creates a Handler.
//
// Precondition: every argument must be non-nil.
func New(races RaceAPI, games MinigameAPI, health Pinger, logger *zap.Logger) *Handler {
	return &Handler{races: races, games: games, health: health, logger: logger}
}
