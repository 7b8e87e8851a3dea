package race_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/derby/internal/game/race"
)

func constCurve(c float64) race.Curve {
	return race.Curve{Family: race.Const, Params: race.Params{C: c}}
}

func genCurve(rt *rapid.T) race.Curve {
	f := rapid.SampledFrom(race.Families).Draw(rt, "family")
	coef := func(label string) float64 { return rapid.Float64Range(0, 0.2).Draw(rt, label) }
	return race.Curve{Family: f, Params: race.Params{A: coef("a"), B: coef("b"), C: coef("c"), K: rapid.Float64Range(0, 1.5).Draw(rt, "k")}}
}

func TestAccelerationAt_Families(t *testing.T) {
	p := race.Params{A: 0.01, B: 0.05, C: 0.07, K: 1}
	assert.InDelta(t, 0.07, race.Curve{Family: race.Const, Params: p}.AccelerationAt(3), 1e-12)
	assert.InDelta(t, 0.01*3+0.05, race.Curve{Family: race.Linear, Params: p}.AccelerationAt(3), 1e-12)
	assert.InDelta(t, 0.01*9+0.05*3+0.07, race.Curve{Family: race.Quad, Params: p}.AccelerationAt(3), 1e-12)
	assert.InDelta(t, 0.01*math.Log1p(3)+0.05, race.Curve{Family: race.Log, Params: p}.AccelerationAt(3), 1e-12)
	assert.InDelta(t, 0.01*math.Exp(3)+0.05, race.Curve{Family: race.Exp, Params: p}.AccelerationAt(3), 1e-12)
	assert.Equal(t, 0.0, race.Curve{Family: "bogus", Params: p}.AccelerationAt(3))
}

func TestAccelerationAt_ClampedAtZero(t *testing.T) {
	c := race.Curve{Family: race.Linear, Params: race.Params{A: -1, B: 0.5}}
	assert.Equal(t, 0.0, c.AccelerationAt(2))
}

func TestDistanceAt_KnownValues(t *testing.T) {
	assert.InDelta(t, 19.8, race.DistanceAt(constCurve(0), 9), 1e-9)
	// x = v0*T + a*dt^2*n(n+1)/2 for constant acceleration.
	assert.InDelta(t, 22.6413, race.DistanceAt(constCurve(0.07), 9), 1e-9)
	assert.Equal(t, 0.0, race.DistanceAt(constCurve(0.07), 0))
	assert.Equal(t, 0.0, race.DistanceAt(constCurve(0.07), -1))
}

func TestDistanceAt_PartialStep(t *testing.T) {
	full := race.DistanceAt(constCurve(0), 0.02)
	half := race.DistanceAt(constCurve(0), 0.03)
	assert.InDelta(t, 0.044, full, 1e-12)
	assert.InDelta(t, 0.066, half, 1e-12)
}

func TestDistanceAt_Monotonic_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := genCurve(rt)
		t1 := rapid.Float64Range(0, 10).Draw(rt, "t1")
		t2 := rapid.Float64Range(t1, 10).Draw(rt, "t2")
		assert.LessOrEqual(rt, race.DistanceAt(c, t1), race.DistanceAt(c, t2)+1e-9)
	})
}

func TestDistanceAt_Deterministic_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := genCurve(rt)
		ts := rapid.Float64Range(0, 10).Draw(rt, "t")
		assert.Equal(rt, race.DistanceAt(c, ts), race.DistanceAt(c, ts))
	})
}

func TestTrack_NoEffectsMatchesDistanceAt_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := race.EntitySpec{ID: 2, Curve: genCurve(rt)}
		other := race.AppliedEffect{TargetID: 3, EffectType: race.Stop, AppliedAt: 0, ExpiresAt: 5000}
		ts := rapid.Float64Range(0, 10).Draw(rt, "t")
		tr := race.NewTrack(e, []race.AppliedEffect{other}, 0)
		assert.Equal(rt, race.DistanceAt(e.Curve, ts), tr.DistanceAt(ts))
	})
}

func TestTrack_StopFreezesEntity(t *testing.T) {
	e := race.EntitySpec{ID: 1, Curve: constCurve(0)}
	stop := race.AppliedEffect{TargetID: 1, EffectType: race.Stop, AppliedAt: 1000, ExpiresAt: 3000}
	tr := race.NewTrack(e, []race.AppliedEffect{stop}, 0)
	assert.InDelta(t, tr.DistanceAt(1), tr.DistanceAt(2.5), 1e-9)
	// Two seconds of the nine are lost at base speed.
	assert.InDelta(t, 2.2*7, tr.DistanceAt(9), 1e-9)
}

func TestTrack_SpeedMultiplyScalesIncrement(t *testing.T) {
	e := race.EntitySpec{ID: 1, Curve: constCurve(0)}
	slow := race.AppliedEffect{TargetID: 1, EffectType: race.SpeedMultiply, Factor: 0.5, AppliedAt: 0, ExpiresAt: 4000}
	tr := race.NewTrack(e, []race.AppliedEffect{slow}, 0)
	assert.InDelta(t, 2.2*2+2.2*5, tr.DistanceAt(9), 1e-9)
}

func TestTrack_SpeedMultipliersCompose(t *testing.T) {
	e := race.EntitySpec{ID: 1, Curve: constCurve(0)}
	effects := []race.AppliedEffect{
		{TargetID: 1, EffectType: race.SpeedMultiply, Factor: 0.5, AppliedAt: 0, ExpiresAt: 2000},
		{TargetID: 1, EffectType: race.SpeedMultiply, Factor: 0.5, AppliedAt: 0, ExpiresAt: 2000},
	}
	tr := race.NewTrack(e, effects, 0)
	assert.InDelta(t, 2.2*0.25*2, tr.DistanceAt(2), 1e-9)
}

func TestTrack_ReverseDeceleratesButNeverGoesBackward(t *testing.T) {
	e := race.EntitySpec{ID: 1, Curve: constCurve(1)}
	rev := race.AppliedEffect{TargetID: 1, EffectType: race.Reverse, AppliedAt: 0, ExpiresAt: 9000}
	tr := race.NewTrack(e, []race.AppliedEffect{rev}, 0)
	d := tr.DistanceAt(9)
	assert.Less(t, d, race.DistanceAt(e.Curve, 9))
	assert.Less(t, d, 2.2*9)
	assert.InDelta(t, d, tr.DistanceAt(5), 1e-9, "velocity floors at zero after 2.2s")
}

func TestTrack_CurveReplacementHoldsFromApplication(t *testing.T) {
	e := race.EntitySpec{ID: 1, Curve: constCurve(0)}
	fast := constCurve(0.5)
	reroll := race.AppliedEffect{TargetID: 1, EffectType: race.Reroll, Curve: &fast, AppliedAt: 5000, ExpiresAt: 9000}
	tr := race.NewTrack(e, []race.AppliedEffect{reroll}, 0)
	assert.InDelta(t, 2.2*5, tr.DistanceAt(5), 1e-9)
	assert.Greater(t, tr.DistanceAt(9), 2.2*9)
	assert.Equal(t, fast, tr.CurveAt(6))
	assert.Equal(t, e.Curve, tr.CurveAt(4))
}

func TestTrack_LatestCurveReplacementWins(t *testing.T) {
	e := race.EntitySpec{ID: 1, Curve: constCurve(0)}
	c1, c2 := constCurve(0.1), constCurve(0.2)
	effects := []race.AppliedEffect{
		{TargetID: 1, EffectType: race.Shuffle, Curve: &c2, AppliedAt: 3000, ExpiresAt: 9000},
		{TargetID: 1, EffectType: race.Reroll, Curve: &c1, AppliedAt: 1000, ExpiresAt: 9000},
	}
	tr := race.NewTrack(e, effects, 0)
	assert.Equal(t, c1, tr.CurveAt(2))
	assert.Equal(t, c2, tr.CurveAt(4))
}
