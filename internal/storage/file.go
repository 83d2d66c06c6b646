// SPDX-License-Identifier: AGPL-3.0-only
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events produced by an atomic save
const debounce = 200 * time.Millisecond

// FileStorage keeps the snapshot in a single file and watches it for changes.
type FileStorage struct {
	path    string
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewFileStorage creates a file storage backed by the given path.
func NewFileStorage(path string) (*FileStorage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &FileStorage{path: abs}, nil
}

// Path returns the absolute path of the backing file
func (s *FileStorage) Path() string {
	return s.path
}

// ReadAll implements Storage.ReadAll.
func (s *FileStorage) ReadAll(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	return b, nil
}

// WriteAll implements Storage.WriteAll. The data lands in a temp file that is
// renamed over the target, so readers never see a torn file.
func (s *FileStorage) WriteAll(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir storage dir: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tasks file: %w", err)
	}
	return nil
}

// Watch implements Storage.Watch.
func (s *FileStorage) Watch(ctx context.Context) (<-chan Event, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir storage dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	ch := make(chan Event)
	go s.watchLoop(ctx, w, ch)
	return ch, nil
}

func (s *FileStorage) watchLoop(ctx context.Context, w *fsnotify.Watcher, ch chan<- Event) {
	defer close(ch)
	defer w.Close()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != s.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			pending = true
			timer.Reset(debounce)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			select {
			case ch <- Event{}:
			case <-ctx.Done():
				return
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close implements Storage.Close.
func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}
