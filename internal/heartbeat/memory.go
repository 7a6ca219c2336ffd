// ABOUTME: In-memory TTL heartbeat store for tests and single-node deployments.
// ABOUTME: Expiry is checked on read; a janitor goroutine reclaims dead entries.

package heartbeat

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	seenAt  time.Time
	expires time.Time
}

// MemoryStore is a thread-safe, TTL-based heartbeat store held in process
// memory. Records expire naturally when their owner stops refreshing them.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]memoryEntry
	generation int64
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStore creates an in-memory store. A background goroutine
// periodically reclaims expired entries.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, e := range s.records {
				if now.After(e.expires) {
					delete(s.records, id)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// Beat creates or refreshes the record for identityID.
func (s *MemoryStore) Beat(_ context.Context, identityID string, ttl time.Duration) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identityID] = memoryEntry{seenAt: now, expires: now.Add(ttl)}
	return nil
}

// LastSeen returns the record timestamp if it has not expired.
func (s *MemoryStore) LastSeen(_ context.Context, identityID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[identityID]
	if !ok || time.Now().After(e.expires) {
		return time.Time{}, false, nil
	}
	return e.seenAt, true, nil
}

// Alive reports whether a fresh record exists.
func (s *MemoryStore) Alive(ctx context.Context, identityID string) (bool, error) {
	_, ok, err := s.LastSeen(ctx, identityID)
	return ok, err
}

// ClearAll deletes every heartbeat record. The generation counter survives.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]memoryEntry)
	return nil
}

// Generation returns the current reset generation.
func (s *MemoryStore) Generation(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, nil
}

// BumpGeneration increments and returns the reset generation.
func (s *MemoryStore) BumpGeneration(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation, nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
