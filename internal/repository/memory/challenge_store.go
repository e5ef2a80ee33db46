package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/repository"
)

var _ repository.ChallengeStore = (*ChallengeStore)(nil)

// ChallengeStore is a TTL-capable key-value store for authorization
// challenges. Expired entries are purged lazily on access; correctness
// never depends on a background sweep.
type ChallengeStore struct {
	mu      sync.Mutex
	entries map[string]challengeEntry
}

type challengeEntry struct {
	challenge domain.Challenge
	deadline  time.Time
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{entries: make(map[string]challengeEntry)}
}

func (s *ChallengeStore) Put(ctx context.Context, key string, ch domain.Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = challengeEntry{challenge: ch, deadline: time.Now().Add(ttl)}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, key string) (domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return domain.Challenge{}, fmt.Errorf("%w: challenge %q", repository.ErrNotFound, key)
	}
	if time.Now().After(entry.deadline) {
		delete(s.entries, key)
		return domain.Challenge{}, fmt.Errorf("%w: challenge %q", repository.ErrNotFound, key)
	}
	return entry.challenge, nil
}

func (s *ChallengeStore) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
