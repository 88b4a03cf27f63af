// Package noise provides the random sources used for score perturbation
// and synthetic series.
package noise

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Source yields uniform draws in [0, 1).
type Source interface {
	Float64() float64
}

// Seeded is a goroutine-safe pseudo-random source.
type Seeded struct {
	mu   sync.Mutex
	rng  *rand.Rand
	seed int64
}

// NewSeeded returns a source seeded with seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{
		rng:  rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Float64 returns the next draw.
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Seed returns the seed the source was created with.
func (s *Seeded) Seed() int64 {
	return s.seed
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// FromConfig returns a seeded source. A zero seed is replaced by a fresh
// crypto seed, which is returned so it can be logged for replay.
func FromConfig(seed int64) (*Seeded, error) {
	if seed == 0 {
		var err error
		seed, err = NewSeed()
		if err != nil {
			return nil, err
		}
	}
	return NewSeeded(seed), nil
}

// Fixed always returns the same draw.
type Fixed float64

// Float64 returns f.
func (f Fixed) Float64() float64 { return float64(f) }

// Zero always draws 0.
var Zero Source = Fixed(0)

// Sequence replays draws in order and then repeats the last one.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence returns a source replaying values.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float64 returns the next value of the sequence.
func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	if s.next >= len(s.values) {
		return s.values[len(s.values)-1]
	}
	v := s.values[s.next]
	s.next++
	return v
}
