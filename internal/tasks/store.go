// SPDX-License-Identifier: AGPL-3.0-only

// Package tasks owns the reminder collection: an in-memory cache that is
// hydrated lazily from durable storage and rewritten wholesale on every change.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/errors"
	"github.com/jolks/mcp-pingr/internal/logging"
	"github.com/jolks/mcp-pingr/internal/model"
	"github.com/jolks/mcp-pingr/internal/storage"
	"github.com/jolks/mcp-pingr/internal/timeref"
)

// Store is the single owner of the task collection. Every operation runs
// under one lock, so a scheduler scan never observes a half-applied edit.
type Store struct {
	mu          sync.Mutex
	scanMu      sync.Mutex
	backend     storage.Storage
	clock       clock.Clock
	parser      *timeref.Parser
	resolver    *timeref.Resolver
	logger      *logging.Logger
	newID       func() string
	tasks       []*model.Task
	loaded      bool
	lastWritten []byte

	listenersMu sync.Mutex
	listeners   []func()
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the wall-clock source
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithResolver sets the resolver, e.g. one with a custom default hour
func WithResolver(r *timeref.Resolver) Option {
	return func(s *Store) {
		s.resolver = r
	}
}

// WithParser sets the parser used by the *Text operations
func WithParser(p *timeref.Parser) Option {
	return func(s *Store) {
		s.parser = p
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithIDGenerator replaces the UUID generator
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// NewStore creates a store on top of backend. Nothing is read until first use.
func NewStore(backend storage.Storage, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		clock:    clock.System{},
		parser:   timeref.NewParser(),
		resolver: timeref.NewResolver(timeref.DefaultHour),
		logger:   logging.GetDefaultLogger(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new task scheduled from ref, which may be nil.
func (s *Store) Create(ctx context.Context, content string, ref *model.TimeReference) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	task := &model.Task{
		ID:        s.newID(),
		Content:   content,
		CreatedAt: now.UnixMilli(),
	}
	s.schedule(task, ref.Clone(), now)

	err := s.commitLocked(ctx, func(tasks []*model.Task) ([]*model.Task, bool, error) {
		return append(tasks, task), true, nil
	})
	if err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// CreateFromText parses content for a time hint and stores a new task
func (s *Store) CreateFromText(ctx context.Context, content string) (*model.Task, error) {
	return s.Create(ctx, content, s.parser.Parse(strings.ToLower(content)))
}

// Get returns a copy of the task with the given id
func (s *Store) Get(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(ctx)
	if _, t := find(s.tasks, id); t != nil {
		return t.Clone(), nil
	}
	return nil, errors.NotFound("task", id)
}

// List returns copies of all tasks, newest first
func (s *Store) List(ctx context.Context) []*model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(ctx)
	out := cloneAll(s.tasks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

// Delete removes a task. Unknown ids are ignored and nothing is written.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked(ctx, func(tasks []*model.Task) ([]*model.Task, bool, error) {
		i, _ := find(tasks, id)
		if i < 0 {
			return tasks, false, nil
		}
		return append(tasks[:i], tasks[i+1:]...), true, nil
	})
}

// Complete marks a task done. Unknown or already completed tasks are ignored.
func (s *Store) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked(ctx, func(tasks []*model.Task) ([]*model.Task, bool, error) {
		_, t := find(tasks, id)
		if t == nil || t.Completed {
			return tasks, false, nil
		}
		t.Completed = true
		return tasks, true, nil
	})
}

// Edit replaces the content of a task and applies change to its schedule.
// With Keep, a signed integer token in content ("+10", "-5") shifts the
// schedule by that many units of the task's reference type.
func (s *Store) Edit(ctx context.Context, id, content string, change TimeChange) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.editLocked(ctx, id, content, func(*model.Task) TimeChange { return change })
}

// EditFromText re-parses content and derives the schedule change with ChangeFor
func (s *Store) EditFromText(ctx context.Context, id, content string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed := s.parser.Parse(strings.ToLower(content))
	return s.editLocked(ctx, id, content, func(t *model.Task) TimeChange {
		return ChangeFor(t.TimeReference, parsed)
	})
}

func (s *Store) editLocked(ctx context.Context, id, content string, changeFor func(*model.Task) TimeChange) (*model.Task, error) {
	var edited *model.Task
	err := s.commitLocked(ctx, func(tasks []*model.Task) ([]*model.Task, bool, error) {
		_, t := find(tasks, id)
		if t == nil {
			return tasks, false, errors.NotFound("task", id)
		}
		s.applyEdit(t, content, changeFor(t), s.clock.Now())
		edited = t
		return tasks, true, nil
	})
	if err != nil {
		return nil, err
	}
	return edited.Clone(), nil
}

func (s *Store) applyEdit(t *model.Task, content string, change TimeChange, now time.Time) {
	t.Content = content
	switch change.kind {
	case changeClear:
		t.TimeReference = nil
		t.Timestamp = nil
		t.Notified = false
	case changeSet:
		if !change.ref.Equal(t.TimeReference) {
			prev := t.Timestamp
			s.schedule(t, change.ref.Clone(), now)
			if t.Timestamp == nil || prev == nil || *prev != *t.Timestamp {
				t.Notified = false
			}
			return
		}
		adjust(t, content, now)
	default:
		adjust(t, content, now)
	}
}

// schedule sets the reference and its resolved timestamp, or neither when
// the reference does not resolve.
func (s *Store) schedule(t *model.Task, ref *model.TimeReference, now time.Time) {
	at, ok := s.resolver.Resolve(ref, now)
	if !ok {
		if ref != nil {
			s.logger.Debugf("time reference %q did not resolve, task %s left unscheduled", ref.Match, t.ID)
		}
		t.TimeReference = nil
		t.Timestamp = nil
		t.Notified = false
		return
	}
	t.TimeReference = ref
	t.Timestamp = model.Millis(at)
}

// Reset wipes every task
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked(ctx, func([]*model.Task) ([]*model.Task, bool, error) {
		return []*model.Task{}, true, nil
	})
}

// Export returns the full collection in storage order, in the on-disk format
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(ctx)
	return encode(s.tasks)
}

// Import replaces the whole collection with a snapshot produced by Export
func (s *Store) Import(ctx context.Context, snapshot []byte) error {
	imported, err := decode(snapshot)
	if err != nil {
		return errors.InvalidInput(fmt.Sprintf("invalid snapshot: %v", err))
	}
	seen := make(map[string]bool, len(imported))
	for _, t := range imported {
		if t.ID == "" {
			return errors.InvalidInput("invalid snapshot: task without id")
		}
		if seen[t.ID] {
			return errors.AlreadyExists("task", t.ID)
		}
		seen[t.ID] = true
		if t.Timestamp == nil {
			t.Notified = false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, func([]*model.Task) ([]*model.Task, bool, error) {
		return imported, true, nil
	})
}

// NotifyDue calls deliver for every task that is due at now, not completed
// and not yet notified, marks the delivered ones notified and persists them
// in a single write. A task whose delivery fails stays eligible. It returns
// how many tasks were marked.
//
// Delivery runs without holding the store lock. A task edited, completed
// or deleted while it was being delivered is not marked.
func (s *Store) NotifyDue(ctx context.Context, now time.Time, deliver func(*model.Task) error) (int, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.mu.Lock()
	s.loadLocked(ctx)
	var due []*model.Task
	for _, t := range s.tasks {
		if t.Pending(now) {
			due = append(due, t.Clone())
		}
	}
	s.mu.Unlock()

	delivered := make(map[string]int64, len(due))
	for _, t := range due {
		if err := deliver(t); err != nil {
			s.logger.Warnf("delivery of task %s failed, will retry: %v", t.ID, err)
			continue
		}
		delivered[t.ID] = *t.Timestamp
	}
	if len(delivered) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	err := s.commitLocked(ctx, func(tasks []*model.Task) ([]*model.Task, bool, error) {
		for _, t := range tasks {
			ts, ok := delivered[t.ID]
			if !ok || !t.Pending(now) || *t.Timestamp != ts {
				continue
			}
			t.Notified = true
			marked++
		}
		return tasks, marked > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// OnReload registers fn to run after the collection was reloaded because
// the backend changed underneath the store.
func (s *Store) OnReload(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Watch follows external changes to the backend until ctx is done
func (s *Store) Watch(ctx context.Context) error {
	ch, err := s.backend.Watch(ctx)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
			if s.reload(ctx) {
				s.emitReload()
			}
		}
	}()
	return nil
}

func (s *Store) reload(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.ReadAll(ctx)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		s.logger.Warnf("reload tasks: %v", err)
		return false
	}
	if bytes.Equal(data, s.lastWritten) {
		return false
	}
	tasks, err := decode(data)
	if err != nil {
		s.logger.Warnf("reload tasks: %v", err)
		return false
	}
	s.tasks = tasks
	s.loaded = true
	s.lastWritten = data
	s.logger.Infof("reloaded %d tasks after external change", len(tasks))
	return true
}

func (s *Store) emitReload() {
	s.listenersMu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// loadLocked hydrates the cache on first use. Unreadable data degrades to an
// empty collection.
func (s *Store) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	s.tasks = []*model.Task{}

	data, err := s.backend.ReadAll(ctx)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			s.logger.Errorf("load tasks, starting empty: %v", err)
		}
		return
	}
	tasks, err := decode(data)
	if err != nil {
		s.logger.Errorf("decode tasks, starting empty: %v", err)
		return
	}
	s.tasks = tasks
	s.lastWritten = data
	s.logger.Debugf("loaded %d tasks", len(tasks))
}

// commitLocked runs fn on a copy of the collection and, when fn reports a
// change, writes the copy out. The cache is only replaced after the write
// succeeded.
func (s *Store) commitLocked(ctx context.Context, fn func([]*model.Task) ([]*model.Task, bool, error)) error {
	s.loadLocked(ctx)

	next, changed, err := fn(cloneAll(s.tasks))
	if err != nil || !changed {
		return err
	}
	data, err := encode(next)
	if err != nil {
		return errors.Internal(err)
	}
	if err := s.backend.WriteAll(ctx, data); err != nil {
		s.logger.Errorf("save tasks: %v", err)
		return errors.Storage("write", err)
	}
	s.tasks = next
	s.lastWritten = data
	return nil
}

func encode(tasks []*model.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return json.MarshalIndent(tasks, "", "  ")
}

func decode(data []byte) ([]*model.Task, error) {
	tasks := []*model.Task{}
	if len(bytes.TrimSpace(data)) == 0 {
		return tasks, nil
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func find(tasks []*model.Task, id string) (int, *model.Task) {
	for i, t := range tasks {
		if t.ID == id {
			return i, t
		}
	}
	return -1, nil
}

func cloneAll(tasks []*model.Task) []*model.Task {
	out := make([]*model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
