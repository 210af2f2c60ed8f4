// Package random provides the random-number provider used by %random tokens
// and chance-based action handlers.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Source is a goroutine-safe math/rand wrapper with draw counting.
// A fixed seed makes a run reproducible, which scenario tests rely on.
type Source struct {
	mu   sync.Mutex
	seed int64
	src  *rand.Rand
	pos  int64
}

// New creates a Source from a seed.
func New(seed int64) *Source {
	return &Source{
		seed: seed,
		src:  rand.New(rand.NewSource(seed)),
	}
}

// NewSeeded creates a Source from a crypto/rand seed.
func NewSeeded() (*Source, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Intn returns an integer in [0, n). n <= 0 yields 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos++
	return s.src.Intn(n)
}

// Chance reports true with probability percent/100.
func (s *Source) Chance(percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return s.Intn(100) < percent
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Position returns the number of draws made since creation.
func (s *Source) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
