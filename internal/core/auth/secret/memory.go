package secret

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemory creates an in-process store. Secrets live only as long as the
// process; it exists for tests and for callers that inject credentials
// up front.
func NewMemory() Store {
	return &memoryStore{
		secrets: make(map[string]string),
	}
}

func (s *memoryStore) key(service, account string) string {
	return service + "\x00" + account
}

func (s *memoryStore) Get(_ context.Context, service, account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[s.key(service, account)]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *memoryStore) Set(_ context.Context, service, account, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secrets[s.key(service, account)] = secret
	return nil
}

func (s *memoryStore) Delete(_ context.Context, service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, s.key(service, account))
	return nil
}
