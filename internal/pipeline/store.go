package pipeline

import (
	"fmt"
	"sync"
)

// Store holds per-run round results, written exactly once per round and read
// any number of times afterward. It is the explicit replacement for
// deferred-availability closures: later rounds query prerequisites by number
// at the moment their wrapper runs.
type Store struct {
	mu      sync.RWMutex
	results map[int]*RoundResult
}

// NewStore creates an empty result store.
func NewStore() *Store {
	return &Store{results: make(map[int]*RoundResult)}
}

// Put records a round result. Each round may be written exactly once.
func (s *Store) Put(result *RoundResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.Round]; exists {
		return fmt.Errorf("round %d result already recorded", result.Round)
	}
	s.results[result.Round] = result
	return nil
}

// Get returns the result of an already-completed round.
func (s *Store) Get(round int) (*RoundResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[round]
	return result, ok
}

// Context returns the compressed context of an already-completed round.
func (s *Store) Context(round int) (RoundContext, bool) {
	result, ok := s.Get(round)
	if !ok {
		return RoundContext{}, false
	}
	return result.Context, true
}

// All returns a copy of the result map.
func (s *Store) All() map[int]*RoundResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*RoundResult, len(s.results))
	for round, result := range s.results {
		out[round] = result
	}
	return out
}
