package payout_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/derby/internal/game/payout"
)

func TestEven_Delta(t *testing.T) {
	assert.Equal(t, int64(500), payout.Even.Delta(500, true))
	assert.Equal(t, int64(-500), payout.Even.Delta(500, false))
	assert.Equal(t, int64(1000), payout.Even.Credit(500, true))
	assert.Equal(t, int64(0), payout.Even.Credit(500, false))
}

func TestEven_Delta_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bet := rapid.Int64Range(100, 10000).Draw(rt, "bet")
		win := rapid.Bool().Draw(rt, "win")
		want := -bet
		if win {
			want = bet
		}
		assert.Equal(rt, want, payout.Even.Delta(bet, win))
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := payout.ParsePolicy("1.5")
	require.NoError(t, err)
	assert.Equal(t, int64(150), p.Credit(101, true), "floors the credit")
	assert.Equal(t, int64(49), p.Delta(101, true))

	_, err = payout.ParsePolicy("0.5")
	assert.Error(t, err)
	_, err = payout.ParsePolicy("two")
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	assert.Equal(t, int64(0), payout.Scale(999, decimal.Zero))
	assert.Equal(t, int64(1498), payout.Scale(999, decimal.RequireFromString("1.5")))
	assert.Equal(t, int64(1998), payout.Scale(999, decimal.NewFromInt(2)))
}
