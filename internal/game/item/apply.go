package item

import (
	"sort"
	"time"

	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/race"
)

// Check validates a purchase of d against s without mutating anything.
//
// Postcondition: Returns nil, or an errs.PolicyViolation error naming the
// first failed rule.
func (d *Def) Check(s *race.State, callerID string, target int, now time.Time) error {
	if phase := s.PhaseAt(now); phase != race.Running {
		return errs.New(errs.PolicyViolation, "items can only be used while the race is running (phase %s)", phase)
	}
	if d.Targeted() {
		if !s.ValidTarget(target) {
			return errs.New(errs.PolicyViolation, "target must be between 1 and %d, got %d", s.Count(), target)
		}
		if target == s.Pick {
			return errs.New(errs.PolicyViolation, "cannot target the picked entity %d", target)
		}
	}
	if d.OncePerCaller && s.UsedBy(callerID, d.Effect) {
		return errs.New(errs.PolicyViolation, "%s can only be used once per race", d.ID)
	}
	return nil
}

// CurveSource draws replacement curves for reroll and shuffle items.
type CurveSource interface {
	Curve() race.Curve
	ShuffleExcept(entities []race.EntitySpec, keep int) map[int]race.Curve
}

// Effects builds the records a purchase of d appends to s.
//
// Precondition: d.Check(s, callerID, target, now) returned nil.
// Postcondition: every record has AppliedAt == now.UnixMilli() and the
// caller's id; s is not modified.
func (d *Def) Effects(s *race.State, callerID string, target int, now time.Time, curves CurveSource) []race.AppliedEffect {
	at := now.UnixMilli()
	base := race.AppliedEffect{
		EffectType: d.Effect,
		ItemID:     d.ID,
		CallerID:   callerID,
		AppliedAt:  at,
		ExpiresAt:  at + d.DurationMs,
	}
	switch d.Effect {
	case race.SpeedMultiply:
		base.TargetID = target
		base.Factor = d.Factor
		return []race.AppliedEffect{base}
	case race.Stop, race.Reverse:
		base.TargetID = target
		return []race.AppliedEffect{base}
	case race.Reroll:
		c := curves.Curve()
		base.TargetID = target
		base.Curve = &c
		base.ExpiresAt = s.RaceEndsAt
		return []race.AppliedEffect{base}
	case race.Shuffle:
		next := curves.ShuffleExcept(s.CurrentEntities(at), s.Pick)
		ids := make([]int, 0, len(next))
		for id := range next {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		out := make([]race.AppliedEffect, 0, len(ids))
		for _, id := range ids {
			c := next[id]
			e := base
			e.TargetID = id
			e.Curve = &c
			e.ExpiresAt = s.RaceEndsAt
			out = append(out, e)
		}
		return out
	}
	return nil
}
