package recoverai

import "sync"

// EntitlementStore tracks which identities have paid for a resource.
// It is safe for concurrent use.
type EntitlementStore struct {
	mu       sync.RWMutex
	entitled map[Identity]struct{}
}

// NewEntitlementStore creates an empty store
func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		entitled: make(map[Identity]struct{}),
	}
}

// IsEntitled reports whether identity has been granted access. Anonymous identities never are.
func (s *EntitlementStore) IsEntitled(identity Identity) bool {
	if identity.IsAnonymous() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entitled[identity]
	return ok
}

// Grant entitles identity. It returns true only when the identity was newly added.
func (s *EntitlementStore) Grant(identity Identity) bool {
	if identity.IsAnonymous() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entitled[identity]; exists {
		return false
	}
	s.entitled[identity] = struct{}{}
	return true
}

// Reset clears every entitlement
func (s *EntitlementStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entitled = make(map[Identity]struct{})
}

// Len returns the number of entitled identities
func (s *EntitlementStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entitled)
}
