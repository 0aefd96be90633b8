package storage

import (
	"sync"

	"github.com/senutpal/quorumstore/internal/clock"
)

type MemoryStorage struct {
	promised    clock.Clock
	accepted    Accepted
	hasAccepted bool
	closed      bool
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) SavePromised(number clock.Clock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.promised = number
	return nil
}

func (m *MemoryStorage) LoadPromised() (clock.Clock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return clock.Clock{}, ErrClosed
	}
	return m.promised, nil
}

func (m *MemoryStorage) SaveAccepted(a Accepted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.accepted = a
	m.hasAccepted = true
	return nil
}

func (m *MemoryStorage) LoadAccepted() (Accepted, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Accepted{}, false, ErrClosed
	}
	return m.accepted, m.hasAccepted, nil
}

func (m *MemoryStorage) ClearAccepted() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.accepted = Accepted{}
	m.hasAccepted = false
	return nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.promised = clock.Clock{}
	m.accepted = Accepted{}
	m.hasAccepted = false
	return nil
}

// Reset empties the storage and reopens it.
func (m *MemoryStorage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
	m.promised = clock.Clock{}
	m.accepted = Accepted{}
	m.hasAccepted = false
}
