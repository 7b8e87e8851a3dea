// Package minigame implements the single-draw point games played outside a
// race: the color strip spinner and the tree slot drop. Outcomes are pure
// functions of a Source draw; the caller owns balance updates.
package minigame

import (
	"github.com/cory-johannsen/derby/internal/game/errs"
)

// Limits bound a single wager.
type Limits struct {
	MinBet int64
	MaxBet int64
}

// Validate checks amount against the limits.
//
// Postcondition: returns an errs.InvalidWager error or nil.
func (l Limits) Validate(amount int64) error {
	if amount < l.MinBet || amount > l.MaxBet {
		return errs.New(errs.InvalidWager, "amount must be between %d and %d, got %d", l.MinBet, l.MaxBet, amount)
	}
	return nil
}
