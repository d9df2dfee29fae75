package auth

import (
	"context"
	"sync"
	"time"
)

// InMemorySessionStore keeps hashed refresh sessions in process. It mirrors
// the Postgres store, including expiry purges, so tests and database-less
// runs behave the same way.
type InMemorySessionStore struct {
	mu   sync.RWMutex
	byID map[string]Session
	now  func() time.Time
}

// NewInMemorySessionStore returns an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{byID: make(map[string]Session), now: time.Now}
}

func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[session.TokenHash] = session
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, tokenHash string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.byID[tokenHash]; ok {
		return session, nil
	}
	return Session{}, ErrSessionNotFound
}

func (s *InMemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, tokenHash)
	return nil
}

// DeleteExpired drops sessions whose refresh token has expired and reports
// how many were removed.
func (s *InMemorySessionStore) DeleteExpired(_ context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for hash, session := range s.byID {
		if session.ExpiresAt.Before(now) {
			delete(s.byID, hash)
			purged++
		}
	}
	return purged, nil
}

// Has reports whether refreshToken still maps to a stored session.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[HashToken(refreshToken)]
	return ok
}
