package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory session store. Expired records are
// rejected on access and reaped by the janitor.
type MemoryStore struct {
	ttl time.Duration

	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an in-memory store with the given TTL.
// A non-positive TTL disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[string]Record),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 {
		rec.ExpiresAt = time.Now().Add(s.ttl)
	}
	s.records[rec.SessionID] = rec
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(sessionID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.expired(rec) {
		delete(s.records, sessionID)
		return Record{}, ErrNotFound
	}
	if s.ttl > 0 {
		rec.ExpiresAt = time.Now().Add(s.ttl)
		s.records[sessionID] = rec
	}
	return rec, nil
}

// AttachConversation implements Store.
func (s *MemoryStore) AttachConversation(sessionID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok || s.expired(rec) {
		return ErrNotFound
	}
	rec.ConversationID = conversationID
	s.records[sessionID] = rec
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// Sweep removes all expired records and returns how many were evicted.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, rec := range s.records {
		if s.expired(rec) {
			delete(s.records, id)
			evicted++
		}
	}
	return evicted
}

// StartJanitor sweeps expired records at the given interval until ctx
// is cancelled. It blocks; run it on its own goroutine.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// expired reports whether rec is past its expiry. Caller must hold s.mu.
func (s *MemoryStore) expired(rec Record) bool {
	return s.ttl > 0 && !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt)
}
