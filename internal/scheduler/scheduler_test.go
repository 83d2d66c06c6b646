// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/config"
	"github.com/jolks/mcp-pingr/internal/logging"
	"github.com/jolks/mcp-pingr/internal/storage"
	"github.com/jolks/mcp-pingr/internal/tasks"
)

var t0 = time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

// MockNotifier is a mock implementation of model.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(ctx context.Context, title, body string) error {
	args := m.Called(title, body)
	return args.Error(0)
}

type fixture struct {
	sched    Scheduler
	store    *tasks.Store
	backend  *storage.MemoryStorage
	clock    *clock.Manual
	notifier *MockNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.New(logging.Options{Level: logging.Error, Output: io.Discard})
	backend := storage.NewMemoryStorage()
	clk := clock.NewManual(t0)
	store := tasks.NewStore(backend, tasks.WithClock(clk), tasks.WithLogger(logger))
	notifier := new(MockNotifier)

	sched, err := NewScheduler(&config.SchedulerConfig{Interval: time.Second, NotificationTitle: "Pingr"}, store, notifier, clk, logger)
	require.NoError(t, err)
	return &fixture{sched: sched, store: store, backend: backend, clock: clk, notifier: notifier}
}

func TestRunOnceDeliversRelativeDaysTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.store.CreateFromText(ctx, "dans 1 jour acheter du pain")
	require.NoError(t, err)
	require.NotNil(t, task.Timestamp)
	assert.Equal(t, t0.AddDate(0, 0, 1).UnixMilli(), *task.Timestamp)

	f.notifier.On("Deliver", "Pingr", "dans 1 jour acheter du pain").Return(nil)
	var changed atomic.Int32
	f.sched.OnTasksChanged(func() { changed.Add(1) })

	// not yet due
	n, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	f.notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)

	f.clock.Advance(24*time.Hour + time.Millisecond)
	writes := f.backend.Writes()
	n, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, writes+1, f.backend.Writes())
	assert.Equal(t, int32(1), changed.Load())
	f.notifier.AssertNumberOfCalls(t, "Deliver", 1)

	got, err := f.store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)

	// a second scan finds nothing new
	n, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, writes+1, f.backend.Writes())
	assert.Equal(t, int32(1), changed.Load())
	f.notifier.AssertNumberOfCalls(t, "Deliver", 1)
}

func TestRunOnceBatchesSeveralTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateFromText(ctx, "dans 5 minutes thé")
	require.NoError(t, err)
	_, err = f.store.CreateFromText(ctx, "dans 10 minutes café")
	require.NoError(t, err)
	done, err := f.store.CreateFromText(ctx, "dans 1 minute fini")
	require.NoError(t, err)
	require.NoError(t, f.store.Complete(ctx, done.ID))

	f.notifier.On("Deliver", "Pingr", mock.Anything).Return(nil)
	var changed atomic.Int32
	f.sched.OnTasksChanged(func() { changed.Add(1) })

	f.clock.Advance(time.Hour)
	writes := f.backend.Writes()
	n, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, writes+1, f.backend.Writes())
	assert.Equal(t, int32(1), changed.Load())
}

func TestRunOnceFailedDeliveryIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.store.CreateFromText(ctx, "dans 5 minutes thé")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	f.notifier.On("Deliver", "Pingr", "dans 5 minutes thé").Return(errors.New("no display")).Once()
	n, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	got, err := f.store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.Notified)

	f.notifier.On("Deliver", "Pingr", "dans 5 minutes thé").Return(nil).Once()
	n, err = f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnceWriteFailureKeepsTaskEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.store.CreateFromText(ctx, "dans 5 minutes thé")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	f.notifier.On("Deliver", "Pingr", mock.Anything).Return(nil)

	f.backend.FailWrites(errors.New("disk full"))
	_, err = f.sched.RunOnce(ctx)
	assert.Error(t, err)

	got, err := f.store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, got.Notified)
}

func TestStartScansImmediately(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.store.CreateFromText(ctx, "dans 5 minutes thé")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	delivered := make(chan struct{}, 1)
	f.notifier.On("Deliver", "Pingr", "dans 5 minutes thé").Return(nil).Run(func(mock.Arguments) {
		delivered <- struct{}{}
	})

	require.NoError(t, f.sched.Start(ctx))
	defer f.sched.Stop()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder was not delivered on start")
	}
}

func TestTickerPicksUpNewlyDueTasks(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan struct{}, 1)
	f.notifier.On("Deliver", "Pingr", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		delivered <- struct{}{}
	})
	require.NoError(t, f.sched.Start(ctx))
	defer f.sched.Stop()

	_, err := f.store.CreateFromText(ctx, "dans 1 minute thé")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	select {
	case <-delivered:
	case <-time.After(3 * time.Second):
		t.Fatal("reminder was not delivered by the periodic scan")
	}
}

func TestStopIsIdempotentAndHaltsDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Start(ctx))
	require.NoError(t, f.sched.Stop())
	require.NoError(t, f.sched.Stop())

	_, err := f.store.CreateFromText(ctx, "dans 1 minute thé")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	n, err := f.sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	f.notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestStopBeforeStart(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.sched.Stop())
}

func TestContextCancellationStopsScheduler(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.sched.Start(ctx))
	cancel()

	s := f.sched.(*notificationScheduler)
	assert.Eventually(t, func() bool { return s.stopped.Load() }, time.Second, 10*time.Millisecond)
}
