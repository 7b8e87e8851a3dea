package race

import (
	"sort"
	"time"

	"github.com/cory-johannsen/derby/internal/game/rng"
)

// ComputeWinner returns the entity with the greatest distance at the end of
// the race. Ties go to the lowest id. ok is false when the state has no
// entities.
func ComputeWinner(s *State) (winner int, ok bool) {
	if len(s.Entities) == 0 {
		return 0, false
	}
	total := s.RaceSeconds()
	best, bestDist := 0, 0.0
	for _, e := range s.Entities {
		d := s.Track(e).DistanceAt(total)
		if best == 0 || d > bestDist || (d == bestDist && e.ID < best) {
			best, bestDist = e.ID, d
		}
	}
	return best, true
}

// ResolveWinner picks the race winner: a stored winner within range, else the
// simulated winner, else an index derived from hashing the race id.
//
// Postcondition: 1 <= result <= s.Count().
func ResolveWinner(s *State) int {
	if s.Winner != nil && s.ValidTarget(*s.Winner) {
		return *s.Winner
	}
	if w, ok := ComputeWinner(s); ok {
		return w
	}
	return rng.HashIndex(s.RaceID, s.Count())
}

// Standing is one entity's live position.
type Standing struct {
	ID       int     `json:"id"`
	Distance float64 `json:"distance"`
	Rank     int     `json:"rank"`
}

// Standings evaluates every entity at now and ranks them, leader first.
func Standings(s *State, now time.Time) []Standing {
	t := s.ElapsedSeconds(now)
	out := make([]Standing, 0, len(s.Entities))
	for _, e := range s.Entities {
		out = append(out, Standing{ID: e.ID, Distance: s.Track(e).DistanceAt(t)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance > out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
