// Package handoff keeps the session parameters a client was admitted with, so
// the session view can pick them up after navigation.
package handoff

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Lobby/internal/domain"
)

var ErrNotFound = errors.New("handoff not found")

// Store abstracts handoff tracking so callers can swap storage backends.
type Store interface {
	Save(ctx context.Context, id domain.ClientID, p domain.SessionParams, ttl time.Duration) error
	Load(ctx context.Context, id domain.ClientID) (domain.SessionParams, error)
	Delete(ctx context.Context, id domain.ClientID) error
}

type memEntry struct {
	params    domain.SessionParams
	expiresAt time.Time
}

// MemStore is a process-local Store. Expired entries are dropped lazily.
type MemStore struct {
	mu  sync.Mutex
	db  map[domain.ClientID]memEntry
	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		db:  make(map[domain.ClientID]memEntry),
		now: time.Now,
	}
}

func (ms *MemStore) Save(_ context.Context, id domain.ClientID, p domain.SessionParams, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	e := memEntry{params: p}
	if ttl > 0 {
		e.expiresAt = ms.now().Add(ttl)
	}
	ms.db[id] = e
	return nil
}

func (ms *MemStore) Load(_ context.Context, id domain.ClientID) (domain.SessionParams, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.db[id]
	if !ok {
		return domain.SessionParams{}, ErrNotFound
	}
	if !e.expiresAt.IsZero() && !ms.now().Before(e.expiresAt) {
		delete(ms.db, id)
		return domain.SessionParams{}, ErrNotFound
	}
	return e.params, nil
}

func (ms *MemStore) Delete(_ context.Context, id domain.ClientID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.db, id)
	return nil
}
