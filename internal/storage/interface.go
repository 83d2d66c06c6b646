// SPDX-License-Identifier: AGPL-3.0-only
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by ReadAll when nothing has been stored yet
var ErrNotFound = errors.New("storage: nothing stored")

// Event signals that the stored bytes changed outside of WriteAll.
type Event struct{}

// Storage is the durable backend of the task store. It moves whole
// snapshots: every write replaces everything previously stored.
type Storage interface {
	// ReadAll returns the last written snapshot, or ErrNotFound.
	ReadAll(ctx context.Context) ([]byte, error)
	// WriteAll atomically replaces the stored snapshot.
	WriteAll(ctx context.Context, data []byte) error
	// Watch emits an event whenever the underlying data changes.
	// The returned channel is closed when the context is done or on fatal watcher error.
	Watch(ctx context.Context) (<-chan Event, error)
	// Close releases any resources used by the storage.
	Close() error
}
