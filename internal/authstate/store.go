// Package authstate issues and verifies the OAuth "state" parameter that
// ties a Google callback to a consent URL this service handed out.
package authstate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miraassistant/mira/internal/apperr"
)

// DefaultTTL bounds how long a user may sit on the consent screen.
const DefaultTTL = 10 * time.Minute

// Store issues single-use state values.
type Store interface {
	// Issue returns a new state value valid for the store's TTL.
	Issue(ctx context.Context) (string, error)

	// Consume accepts a state exactly once. Unknown, expired or replayed
	// values yield apperr.ErrInvalidState.
	Consume(ctx context.Context, state string) error
}

// MemoryStore keeps state values in process.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		pending: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Issue(context.Context) (string, error) {
	state := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.pending {
		if !now.Before(exp) {
			delete(s.pending, k)
		}
	}
	s.pending[state] = now.Add(s.ttl)
	return state, nil
}

func (s *MemoryStore) Consume(_ context.Context, state string) error {
	if state == "" {
		return apperr.ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.pending[state]
	if !ok {
		return apperr.ErrInvalidState
	}
	delete(s.pending, state)
	if !s.now().Before(exp) {
		return apperr.ErrInvalidState
	}
	return nil
}
