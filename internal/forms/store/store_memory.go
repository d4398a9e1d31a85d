// Package store keeps mounted form sessions in process memory.
package store

import (
	"context"
	"sync"
	"time"

	"fishtank/internal/forms/models"
	"fishtank/pkg/domain"
	dErrors "fishtank/pkg/domain-errors"
)

// ErrNotFound is returned when no live session has the requested id.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "form session not found")

// InMemorySessionStore is a map of sessions guarded by one RWMutex. Sessions
// hold their own state lock, so the map lock is only taken for lookups.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.InstanceID]*models.Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[domain.InstanceID]*models.Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.InstanceID] = sess
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, id domain.InstanceID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// FindOrCreate returns the session for id, inserting create() when absent.
// Two concurrent callers always receive the same *Session.
func (s *InMemorySessionStore) FindOrCreate(_ context.Context, id domain.InstanceID, create func() *models.Session) (*models.Session, bool, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false, nil
	}
	sess = create()
	s.sessions[id] = sess
	return sess, true, nil
}

// DeleteExpiredSessions removes sessions past ExpiresAt. Sessions with a
// dispatch in flight are kept until the next sweep.
func (s *InMemorySessionStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) && !sess.InFlight() {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored sessions.
func (s *InMemorySessionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
