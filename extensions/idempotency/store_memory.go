package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a SubmissionStore for a single agent process.
//
// Features:
//   - Thread-safe with mutex protection
//   - Configurable TTL for cached transaction hashes
//   - In-flight tracking with wait channels
//   - Lazy cleanup of expired entries
type InMemoryStore struct {
	mu       sync.Mutex
	results  map[string]string
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewInMemoryStore creates a store remembering transaction hashes for ttl
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		results:  make(map[string]string),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// CheckAndMark atomically checks the cache and marks the key as in-flight if needed.
func (s *InMemoryStore) CheckAndMark(key string) (SubmissionStatus, string, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, exists := s.expiry[key]; exists {
		if s.now().Before(expiry) {
			return StatusCached, s.results[key], nil
		}
		delete(s.results, key)
		delete(s.expiry, key)
	}

	if done, exists := s.inFlight[key]; exists {
		return StatusInFlight, "", done
	}

	done := make(chan struct{})
	s.inFlight[key] = done
	return StatusNotFound, "", done
}

// WaitForResult waits for an in-flight submission to complete.
func (s *InMemoryStore) WaitForResult(ctx context.Context, key string, done chan struct{}) (string, error) {
	select {
	case <-done:
		return s.get(key), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *InMemoryStore) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.expiry[key]
	if !exists {
		return ""
	}
	if s.now().After(expiry) {
		delete(s.results, key)
		delete(s.expiry, key)
		return ""
	}
	return s.results[key]
}

// Complete caches the transaction hash and signals waiting goroutines.
func (s *InMemoryStore) Complete(key string, txHash string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[key] = txHash
	s.expiry[key] = s.now().Add(s.ttl)
	delete(s.inFlight, key)
	close(done)

	s.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result.
func (s *InMemoryStore) Fail(key string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, key)
	close(done)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (s *InMemoryStore) cleanupExpiredLocked() {
	now := s.now()
	for key, expiry := range s.expiry {
		if now.After(expiry) {
			delete(s.results, key)
			delete(s.expiry, key)
		}
	}
}

var _ SubmissionStore = (*InMemoryStore)(nil)
