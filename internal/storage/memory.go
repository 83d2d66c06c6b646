// SPDX-License-Identifier: AGPL-3.0-only
package storage

import (
	"context"
	"sync"
)

// MemoryStorage keeps the snapshot in memory. Useful for tests and for
// running without a data directory.
type MemoryStorage struct {
	mu       sync.Mutex
	data     []byte
	stored   bool
	writes   int
	writeErr error
	readErr  error
	events   chan Event
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{events: make(chan Event, 1)}
}

// ReadAll implements Storage.ReadAll.
func (m *MemoryStorage) ReadAll(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if !m.stored {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

// WriteAll implements Storage.WriteAll.
func (m *MemoryStorage) WriteAll(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data = append([]byte(nil), data...)
	m.stored = true
	m.writes++
	return nil
}

// Replace swaps the stored bytes as an outside writer would, and emits a watch event.
func (m *MemoryStorage) Replace(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.stored = true
	m.mu.Unlock()
	select {
	case m.events <- Event{}:
	default:
	}
}

// Writes returns how many successful WriteAll calls happened
func (m *MemoryStorage) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailWrites makes every following WriteAll return err; nil restores writes.
func (m *MemoryStorage) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailReads makes every following ReadAll return err; nil restores reads.
func (m *MemoryStorage) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Watch implements Storage.Watch. Only Replace produces events.
func (m *MemoryStorage) Watch(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-m.events:
				select {
				case ch <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close implements Storage.Close.
func (m *MemoryStorage) Close() error {
	return nil
}
