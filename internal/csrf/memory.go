package csrf

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens in process memory
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

// NewMemoryStore creates an empty token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

func (s *MemoryStore) SaveToken(_ context.Context, token string, expiresIn time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for t, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = now.Add(expiresIn)
	return nil
}

func (s *MemoryStore) ConsumeToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.tokens[token]
	if !ok {
		return ErrInvalidToken
	}
	delete(s.tokens, token)
	if time.Now().After(exp) {
		return ErrTokenExpired
	}
	return nil
}

func (s *MemoryStore) CheckHealth(context.Context) error {
	return nil
}
