// Package rng provides the seeded pseudo-random streams used to generate and
// replay races. Streams are reproducible: the same seed always yields the
// same sequence of draws.
package rng

import (
	"sync"
	"unicode/utf16"
)

// Source is the randomness provider for race generation and minigames.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// Intn returns a non-negative int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

// HashSeed folds s into a 32-bit seed with FNV-1a over its UTF-16 code units.
//
// Postcondition: equal strings always hash to the same seed.
func HashSeed(s string) uint32 {
	h := fnvOffset32
	for _, unit := range utf16.Encode([]rune(s)) {
		h ^= uint32(unit)
		h *= fnvPrime32
	}
	return h
}

// Mulberry32 is the immutable state of a mulberry32 generator.
type Mulberry32 uint32

// SeedString derives generator state from an arbitrary string.
func SeedString(s string) Mulberry32 { return Mulberry32(HashSeed(s)) }

// SeedUint uses n directly as generator state.
func SeedUint(n uint32) Mulberry32 { return Mulberry32(n) }

// Next returns the next draw in [0, 1) and the successor state. The receiver
// is not modified.
func (m Mulberry32) Next() (float64, Mulberry32) {
	s := uint32(m) + 0x6d2b79f5
	t := s
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296, Mulberry32(s)
}

// Stream is a mutable, concurrency-safe Source over a Mulberry32 state.
type Stream struct {
	mu    sync.Mutex
	state Mulberry32
}

// NewStream returns a Stream positioned at state.
func NewStream(state Mulberry32) *Stream {
	return &Stream{state: state}
}

// Float64 advances the stream and returns the draw.
func (s *Stream) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f float64
	f, s.state = s.state.Next()
	return f
}

// Intn returns floor(Float64() * n).
//
// Precondition: n > 0. Panics with "rng: Intn called with n <= 0" otherwise.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn called with n <= 0")
	}
	return int(s.Float64() * float64(n))
}

// State returns the current generator state.
func (s *Stream) State() Mulberry32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Between returns a uniform draw in [lo, hi).
func Between(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// HashIndex deterministically maps id to an index in [1, n] using the first
// draw of a stream seeded from id.
//
// Precondition: n > 0.
func HashIndex(id string, n int) int {
	f, _ := SeedString(id).Next()
	return int(f*float64(n)) + 1
}
