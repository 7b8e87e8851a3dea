package race

import "math"

const (
	// BaseSpeed is every entity's velocity at t = 0.
	BaseSpeed = 2.2
	// StepSeconds is the integration step.
	StepSeconds = 0.02
)

// DistanceAt integrates the curve from 0 to t seconds with forward Euler
// steps, starting at BaseSpeed. Velocity never drops below zero, so distance
// is non-decreasing in t.
func DistanceAt(c Curve, t float64) float64 {
	return integrate(t, func(float64) stepMods {
		return stepMods{curve: c, scale: 1}
	})
}

type stepMods struct {
	curve    Curve
	scale    float64
	frozen   bool
	reversed bool
}

func integrate(tSeconds float64, at func(t float64) stepMods) float64 {
	if tSeconds <= 0 || math.IsNaN(tSeconds) {
		return 0
	}
	n := int(math.Floor(tSeconds / StepSeconds))
	v, x := BaseSpeed, 0.0
	step := func(t, dt float64) {
		m := at(t)
		if m.frozen {
			return
		}
		a := m.curve.AccelerationAt(t)
		if m.reversed {
			a = -a
		}
		v += a * dt
		if v < 0 {
			v = 0
		}
		x += v * m.scale * dt
	}
	for i := 0; i < n; i++ {
		step(float64(i)*StepSeconds, StepSeconds)
	}
	if rem := tSeconds - float64(n)*StepSeconds; rem > 0 {
		step(float64(n)*StepSeconds, rem)
	}
	return x
}

// Track is one entity's trajectory with its applied effects folded in.
type Track struct {
	entity  EntitySpec
	effects []AppliedEffect
	startMs int64
}

// NewTrack selects the effects targeting entity. startMs is the race start
// in unix milliseconds; effect windows are measured from it.
func NewTrack(entity EntitySpec, effects []AppliedEffect, startMs int64) Track {
	var own []AppliedEffect
	for _, e := range effects {
		if e.TargetID == entity.ID {
			own = append(own, e)
		}
	}
	return Track{entity: entity, effects: own, startMs: startMs}
}

// DistanceAt integrates the entity's motion to t seconds. Speed multipliers
// compose multiplicatively, a stop freezes the entity, a reverse negates its
// acceleration, and curve replacements hold from their application onward.
//
// Postcondition: with no effects the result equals DistanceAt(entity.Curve, t).
func (tr Track) DistanceAt(t float64) float64 {
	if len(tr.effects) == 0 {
		return DistanceAt(tr.entity.Curve, t)
	}
	return integrate(t, tr.modsAt)
}

// CurveAt returns the curve governing the entity at t seconds.
func (tr Track) CurveAt(t float64) Curve {
	return tr.modsAt(t).curve
}

func (tr Track) modsAt(t float64) stepMods {
	m := stepMods{curve: tr.entity.Curve, scale: 1}
	curveFrom := math.Inf(-1)
	for _, e := range tr.effects {
		from := float64(e.AppliedAt-tr.startMs) / 1000
		to := float64(e.ExpiresAt-tr.startMs) / 1000
		if t < from {
			continue
		}
		if e.EffectType.ReplacesCurve() {
			if e.Curve != nil && from >= curveFrom {
				m.curve = *e.Curve
				curveFrom = from
			}
			continue
		}
		if t >= to {
			continue
		}
		switch e.EffectType {
		case SpeedMultiply:
			m.scale *= e.Factor
		case Stop:
			m.frozen = true
		case Reverse:
			m.reversed = true
		}
	}
	return m
}
