package minigame

import (
	"github.com/shopspring/decimal"

	"github.com/cory-johannsen/derby/internal/game/payout"
	"github.com/cory-johannsen/derby/internal/game/rng"
)

// Color is a strip cell color.
type Color string

const (
	Red    Color = "red"
	Orange Color = "orange"
	Yellow Color = "yellow"
	Green  Color = "green"
)

// Strip is the spinner layout, left to right. Green sits alone in the middle.
var Strip = [17]Color{
	Red, Red, Red, Red, Red,
	Orange, Orange,
	Yellow, Green, Yellow,
	Orange, Orange,
	Red, Red, Red, Red, Red,
}

var colorMultiplier = map[Color]decimal.Decimal{
	Red:    decimal.Zero,
	Orange: decimal.NewFromInt(1),
	Yellow: decimal.RequireFromString("1.5"),
	Green:  decimal.NewFromInt(2),
}

// Multiplier returns the gross return multiplier for c.
func (c Color) Multiplier() decimal.Decimal {
	return colorMultiplier[c]
}

// ColorOutcome is the result of one spin.
type ColorOutcome struct {
	Index      int     `json:"index"`
	Color      Color   `json:"color"`
	Multiplier float64 `json:"multiplier"`
	// Reward is the gross amount returned; Delta = Reward - amount.
	Reward int64 `json:"reward"`
	Delta  int64 `json:"delta"`
}

// SpinColor draws a strip cell uniformly and prices amount against it.
//
// Precondition: amount has passed Limits.Validate.
func SpinColor(src rng.Source, amount int64) ColorOutcome {
	idx := src.Intn(len(Strip))
	c := Strip[idx]
	reward := payout.Scale(amount, c.Multiplier())
	return ColorOutcome{
		Index:      idx,
		Color:      c,
		Multiplier: c.Multiplier().InexactFloat64(),
		Reward:     reward,
		Delta:      reward - amount,
	}
}
