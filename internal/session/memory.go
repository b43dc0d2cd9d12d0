// Package session provides storage backends for import sessions.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/staffimport/internal/core"
)

// MemoryBackend keeps sessions in process memory. Sessions are stored as
// JSON so callers never share state with the backend. Expired sessions are
// removed by Sweep.
type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string][]byte
	created  map[string]time.Time
	locked   map[string]bool
}

var (
	_ core.SessionBackend = (*MemoryBackend)(nil)
	_ core.Sweeper        = (*MemoryBackend)(nil)
)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string][]byte),
		created:  make(map[string]time.Time),
		locked:   make(map[string]bool),
	}
}

// Load returns a copy of the session.
func (b *MemoryBackend) Load(_ context.Context, id string) (*core.ImportSession, error) {
	b.mu.Lock()
	data, ok := b.sessions[id]
	b.mu.Unlock()
	if !ok {
		return nil, core.ErrSessionNotFound
	}

	var s core.ImportSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// Save stores a copy of s.
func (b *MemoryBackend) Save(_ context.Context, s *core.ImportSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s.ID] = data
	b.created[s.ID] = s.CreatedAt
	return nil
}

// Lock marks the session as being committed. A second Lock before unlock
// fails with core.ErrSessionBusy.
func (b *MemoryBackend) Lock(_ context.Context, id string) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locked[id] {
		return nil, core.ErrSessionBusy
	}
	b.locked[id] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.locked, id)
			b.mu.Unlock()
		})
	}, nil
}

// Sweep deletes unlocked sessions created before createdBefore.
func (b *MemoryBackend) Sweep(_ context.Context, createdBefore time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, created := range b.created {
		if b.locked[id] || !created.Before(createdBefore) {
			continue
		}
		delete(b.sessions, id)
		delete(b.created, id)
		removed++
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
