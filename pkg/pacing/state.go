package pacing

import (
	"sync"
	"time"
)

// State is the mutable pacing record of one account: how many requests
// went out since the last failure, how many failures happened in a row, and
// when the last request of each kind was issued. It lives in memory only.
type State struct {
	mu          sync.Mutex
	requests    int
	failures    int
	lastRequest time.Time
	lastByKind  map[Kind]time.Time
}

// Snapshot is an immutable copy of State.
type Snapshot struct {
	ConsecutiveRequests int
	ConsecutiveFailures int
	LastRequest         time.Time
}

func NewState() *State {
	return &State{lastByKind: make(map[Kind]time.Time)}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ConsecutiveRequests: s.requests,
		ConsecutiveFailures: s.failures,
		LastRequest:         s.lastRequest,
	}
}

// LastRequest returns when a request of kind was last issued.
func (s *State) LastRequest(kind Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastByKind[kind]
	return t, ok
}

func (s *State) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *State) recordRequest(kind Kind, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.lastRequest = at
	s.lastByKind[kind] = at
}

func (s *State) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.requests = 0
	return s.failures
}

func (s *State) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
}
