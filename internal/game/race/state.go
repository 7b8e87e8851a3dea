package race

import (
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/derby/internal/game/errs"
	"github.com/cory-johannsen/derby/internal/game/rng"
)

// Phase is a race lifecycle phase.
type Phase string

const (
	Countdown Phase = "countdown"
	Running   Phase = "running"
	Finished  Phase = "finished"
)

func (p Phase) rank() int {
	switch p {
	case Running:
		return 1
	case Finished:
		return 2
	}
	return 0
}

// DefaultEntities is the entity count assumed for states that predate the
// entityCount field.
const DefaultEntities = 5

// Rules bound the races a server creates.
type Rules struct {
	Entities  int
	MinBet    int64
	MaxBet    int64
	Countdown time.Duration
	Duration  time.Duration
}

// ValidateWager checks pick and bet against the rules.
//
// Postcondition: returns an errs.InvalidWager error or nil.
func (r Rules) ValidateWager(pick int, bet int64) error {
	if pick < 1 || pick > r.Entities {
		return errs.New(errs.InvalidWager, "pick must be between 1 and %d, got %d", r.Entities, pick)
	}
	if bet < r.MinBet || bet > r.MaxBet {
		return errs.New(errs.InvalidWager, "bet must be between %d and %d, got %d", r.MinBet, r.MaxBet, bet)
	}
	return nil
}

// State is the persisted record of one race.
//
// Invariant: Settled implies Winner, Delta, and AfterPoints are non-nil and
// never change again. Pick and Bet never change after creation.
// AppliedEffects is append-only.
type State struct {
	RaceID         string          `json:"raceId"`
	OwnerID        string          `json:"ownerId"`
	Pick           int             `json:"pick"`
	Bet            int64           `json:"bet"`
	Seed           uint32          `json:"seed"`
	EntityCount    int             `json:"entityCount"`
	CreatedAt      int64           `json:"createdAt"`
	Phase          Phase           `json:"phase"`
	RaceStartsAt   int64           `json:"raceStartsAt"`
	RaceEndsAt     int64           `json:"raceEndsAt"`
	Entities       []EntitySpec    `json:"entities"`
	AppliedEffects []AppliedEffect `json:"appliedEffects"`
	Settled        bool            `json:"settled"`
	Winner         *int            `json:"winner"`
	Delta          *int64          `json:"delta"`
	AfterPoints    *int64          `json:"afterPoints"`
}

// New validates the wager and generates a race whose entities are drawn from
// a stream seeded with seed.
//
// Precondition: rules.Entities >= 1.
// Postcondition: on success the state is in the phase implied by now, with
// entity ids 1..rules.Entities and no effects.
func New(raceID, ownerID string, pick int, bet int64, rules Rules, seed uint32, now time.Time) (*State, error) {
	if err := rules.ValidateWager(pick, bet); err != nil {
		return nil, err
	}
	created := now.UnixMilli()
	starts := created + rules.Countdown.Milliseconds()
	s := &State{
		RaceID:         raceID,
		OwnerID:        ownerID,
		Pick:           pick,
		Bet:            bet,
		Seed:           seed,
		EntityCount:    rules.Entities,
		CreatedAt:      created,
		Phase:          Countdown,
		RaceStartsAt:   starts,
		RaceEndsAt:     starts + rules.Duration.Milliseconds(),
		Entities:       NewGenerator(rng.NewStream(rng.SeedUint(seed))).Specs(rules.Entities),
		AppliedEffects: []AppliedEffect{},
	}
	s.Advance(now)
	return s, nil
}

// PhaseAt derives the phase from the stored deadlines. A stored Finished
// phase is sticky.
func (s *State) PhaseAt(now time.Time) Phase {
	if s.Phase == Finished {
		return Finished
	}
	ms := now.UnixMilli()
	switch {
	case ms >= s.RaceEndsAt:
		return Finished
	case ms >= s.RaceStartsAt:
		return Running
	}
	return Countdown
}

// Advance moves the stored phase forward to PhaseAt(now). It never moves
// backward.
func (s *State) Advance(now time.Time) {
	if p := s.PhaseAt(now); p.rank() > s.Phase.rank() {
		s.Phase = p
	}
}

// Count returns the number of entities in the race.
func (s *State) Count() int {
	switch {
	case len(s.Entities) > 0:
		return len(s.Entities)
	case s.EntityCount > 0:
		return s.EntityCount
	}
	return DefaultEntities
}

// ValidTarget reports whether id names an entity in this race.
func (s *State) ValidTarget(id int) bool {
	return id >= 1 && id <= s.Count()
}

// RaceSeconds is the length of the running phase.
func (s *State) RaceSeconds() float64 {
	return float64(s.RaceEndsAt-s.RaceStartsAt) / 1000
}

// ElapsedSeconds is the running time at now, clamped to [0, RaceSeconds].
func (s *State) ElapsedSeconds(now time.Time) float64 {
	e := float64(now.UnixMilli()-s.RaceStartsAt) / 1000
	if e < 0 {
		return 0
	}
	if total := s.RaceSeconds(); e > total {
		return total
	}
	return e
}

// Track returns the trajectory of e with this race's effects applied.
func (s *State) Track(e EntitySpec) Track {
	return NewTrack(e, s.AppliedEffects, s.RaceStartsAt)
}

// CurrentEntities returns every entity with the curve governing it at
// atMs, after curve replacements.
func (s *State) CurrentEntities(atMs int64) []EntitySpec {
	t := float64(atMs-s.RaceStartsAt) / 1000
	out := make([]EntitySpec, len(s.Entities))
	for i, e := range s.Entities {
		out[i] = EntitySpec{ID: e.ID, Curve: s.Track(e).CurveAt(t)}
	}
	return out
}

// UsedBy reports whether callerID already applied an effect of type t.
func (s *State) UsedBy(callerID string, t EffectType) bool {
	for _, e := range s.AppliedEffects {
		if e.CallerID == callerID && e.EffectType == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Entities = append([]EntitySpec(nil), s.Entities...)
	c.AppliedEffects = make([]AppliedEffect, len(s.AppliedEffects))
	for i, e := range s.AppliedEffects {
		if e.Curve != nil {
			curve := *e.Curve
			e.Curve = &curve
		}
		c.AppliedEffects[i] = e
	}
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	if s.Delta != nil {
		d := *s.Delta
		c.Delta = &d
	}
	if s.AfterPoints != nil {
		a := *s.AfterPoints
		c.AfterPoints = &a
	}
	return &c
}

// Settle records the outcome.
//
// Precondition: !s.Settled.
// Postcondition: s.Settled and the outcome fields are set; the phase is Finished.
func (s *State) Settle(winner int, delta, afterPoints int64) {
	s.Winner = &winner
	s.Delta = &delta
	s.AfterPoints = &afterPoints
	s.Settled = true
	s.Phase = Finished
}

// ErrMalformed marks a race document that decodes but breaks the State
// invariants.
var ErrMalformed = errors.New("malformed race state")

// Validate checks a decoded document before it is trusted.
//
// Postcondition: returns an error wrapping ErrMalformed, or nil when every
// id is in 1..Count(), every curve family and effect type is known, and a
// settled state carries its full outcome.
func (s *State) Validate() error {
	n := s.Count()
	if !s.ValidTarget(s.Pick) {
		return malformed("pick %d outside 1..%d", s.Pick, n)
	}
	if s.Bet < 0 {
		return malformed("negative bet %d", s.Bet)
	}
	switch s.Phase {
	case "", Countdown, Running, Finished:
	default:
		return malformed("unknown phase %q", s.Phase)
	}
	for _, e := range s.Entities {
		if !s.ValidTarget(e.ID) {
			return malformed("entity id %d outside 1..%d", e.ID, n)
		}
		if !e.Curve.Family.Valid() {
			return malformed("entity %d has unknown curve family %q", e.ID, e.Curve.Family)
		}
	}
	for i, e := range s.AppliedEffects {
		if !e.EffectType.Valid() {
			return malformed("effect %d has unknown type %q", i, e.EffectType)
		}
		if !s.ValidTarget(e.TargetID) {
			return malformed("effect %d targets %d outside 1..%d", i, e.TargetID, n)
		}
		if e.Curve != nil && !e.Curve.Family.Valid() {
			return malformed("effect %d has unknown curve family %q", i, e.Curve.Family)
		}
	}
	if s.Winner != nil && !s.ValidTarget(*s.Winner) {
		return malformed("winner %d outside 1..%d", *s.Winner, n)
	}
	if s.Settled && (s.Winner == nil || s.Delta == nil || s.AfterPoints == nil) {
		return malformed("settled without winner, delta, and afterPoints")
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
