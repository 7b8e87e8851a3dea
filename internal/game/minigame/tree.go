package minigame

import (
	"github.com/shopspring/decimal"

	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/payout"
	"github.com/cory-johannsen/derby/internal/game/rng"
)

// TreeSlots is the number of slots a ball can land in.
const TreeSlots = 6

// BetType is a tree wager kind.
type BetType string

const (
	Exact BetType = "EXACT"
	Odd   BetType = "ODD"
	Even  BetType = "EVEN"
	Left  BetType = "LEFT"
	Right BetType = "RIGHT"
)

var (
	exactPayout  = decimal.NewFromInt(2)
	simplePayout = decimal.RequireFromString("1.5")
)

// TreeBet is one tree wager. Slot is only meaningful for Exact bets.
type TreeBet struct {
	Type   BetType `json:"betType"`
	Slot   int     `json:"betSlot"`
	Amount int64   `json:"amount"`
}

// Validate checks the bet kind, slot, and amount.
func (b TreeBet) Validate(l Limits) error {
	switch b.Type {
	case Exact:
		if b.Slot < 1 || b.Slot > TreeSlots {
			return errs.New(errs.InvalidWager, "betSlot must be between 1 and %d, got %d", TreeSlots, b.Slot)
		}
	case Odd, Even, Left, Right:
	default:
		return errs.New(errs.InvalidWager, "unknown bet type %q", b.Type)
	}
	return l.Validate(b.Amount)
}

// Wins reports whether the bet wins when the ball lands in slot.
func (b TreeBet) Wins(slot int) bool {
	switch b.Type {
	case Exact:
		return b.Slot == slot
	case Odd:
		return slot%2 == 1
	case Even:
		return slot%2 == 0
	case Left:
		return slot <= TreeSlots/2
	case Right:
		return slot > TreeSlots/2
	}
	return false
}

func (b TreeBet) multiplier() decimal.Decimal {
	if b.Type == Exact {
		return exactPayout
	}
	return simplePayout
}

// TreeOutcome is the result of one drop.
type TreeOutcome struct {
	FinalSlot int   `json:"finalSlot"`
	Win       bool  `json:"win"`
	Reward    int64 `json:"reward"`
	Delta     int64 `json:"delta"`
}

// DropTree draws a final slot uniformly in [1, TreeSlots] and prices b.
//
// Precondition: b has passed Validate.
func DropTree(src rng.Source, b TreeBet) TreeOutcome {
	slot := src.Intn(TreeSlots) + 1
	out := TreeOutcome{FinalSlot: slot}
	if b.Wins(slot) {
		out.Win = true
		out.Reward = payout.Scale(b.Amount, b.multiplier())
	}
	out.Delta = out.Reward - b.Amount
	return out
}
