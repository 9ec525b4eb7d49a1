// Package rng provides the deterministic random stream used for every
// stochastic decision in a simulation run. The stream is an explicit state
// capsule: its cursor can be read and restored exactly, so a run checkpointed
// at any step continues with the same draws it would have produced unpaused.
package rng

import "math"

// Stream is a splitmix64 generator with a checkpointable cursor.
type Stream struct {
	state uint64
}

// New returns a stream seeded from seed.
func New(seed int64) *Stream {
	s := &Stream{state: uint64(seed)}
	// One warm-up step decorrelates small adjacent seeds.
	s.Uint64()
	return s
}

// Restore returns a stream positioned at a previously saved cursor.
func Restore(state uint64) *Stream {
	return &Stream{state: state}
}

// State returns the current cursor. Restoring it reproduces the exact
// continuation of the stream.
func (s *Stream) State() uint64 { return s.state }

// Uint64 advances the stream and returns the next value.
func (s *Stream) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a uniform draw in [0, 1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Range returns a uniform draw in [lo, hi). Degenerate ranges collapse to lo.
func (s *Stream) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*s.Float64()
}

// Intn returns a uniform draw in [0, n). n must be positive.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// Maybe returns true with probability p.
func (s *Stream) Maybe(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float64() < p
}

// RangeOrNever draws from [lo, hi) unless the hetero probability fires, in
// which case the event never happens.
func (s *Stream) RangeOrNever(lo, hi, heteroProb float64) float64 {
	if s.Maybe(heteroProb) {
		return math.Inf(1)
	}
	return s.Range(lo, hi)
}
