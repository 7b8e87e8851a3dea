package race

// EffectType tags an item effect.
type EffectType string

const (
	SpeedMultiply EffectType = "speed_multiply"
	Stop          EffectType = "stop"
	Reverse       EffectType = "reverse"
	// Shuffle redistributes the curves of every entity except the pick.
	Shuffle EffectType = "shuffle"
	// Reroll replaces the target's curve with a freshly generated one.
	Reroll EffectType = "reroll"
)

// Valid reports whether t is a known effect type.
func (t EffectType) Valid() bool {
	switch t {
	case SpeedMultiply, Stop, Reverse, Shuffle, Reroll:
		return true
	}
	return false
}

// ReplacesCurve reports whether the effect swaps the target's curve rather
// than modulating its motion for a window.
func (t EffectType) ReplacesCurve() bool {
	return t == Shuffle || t == Reroll
}

// AppliedEffect records one effect against one entity. Timestamps are unix
// milliseconds; the effect is active in [AppliedAt, ExpiresAt).
type AppliedEffect struct {
	TargetID   int        `json:"targetId"`
	EffectType EffectType `json:"effectType"`
	ItemID     string     `json:"itemId"`
	CallerID   string     `json:"callerId"`
	Factor     float64    `json:"factor,omitempty"`
	Curve      *Curve     `json:"curve,omitempty"`
	AppliedAt  int64      `json:"appliedAt"`
	ExpiresAt  int64      `json:"expiresAt"`
}
