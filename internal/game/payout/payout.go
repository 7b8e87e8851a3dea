// Package payout computes point movements from wagers and gross return
// multipliers.
package payout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy settles a won-or-lost wager.
type Policy struct {
	// Multiplier is the gross return on a win: the owner is credited
	// floor(bet * Multiplier).
	Multiplier decimal.Decimal
}

// Even is the canonical policy: a win returns double the stake.
var Even = Policy{Multiplier: decimal.NewFromInt(2)}

// ParsePolicy parses a decimal gross multiplier such as "2" or "1.5".
//
// Postcondition: the multiplier is >= 1 or an error is returned.
func ParsePolicy(s string) (Policy, error) {
	m, err := decimal.NewFromString(s)
	if err != nil {
		return Policy{}, fmt.Errorf("parsing payout multiplier %q: %w", s, err)
	}
	if m.LessThan(decimal.NewFromInt(1)) {
		return Policy{}, fmt.Errorf("payout multiplier must be >= 1, got %s", s)
	}
	return Policy{Multiplier: m}, nil
}

// Credit is the amount returned to the owner at settlement.
func (p Policy) Credit(bet int64, win bool) int64 {
	if !win {
		return 0
	}
	return Scale(bet, p.Multiplier)
}

// Delta is the net change to the owner's balance relative to before the
// wager was placed: Credit - bet.
//
// Postcondition: with Even, Delta is +bet on a win and -bet on a loss.
func (p Policy) Delta(bet int64, win bool) int64 {
	return p.Credit(bet, win) - bet
}

// Scale returns floor(amount * m).
func Scale(amount int64, m decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(m).Floor().IntPart()
}
