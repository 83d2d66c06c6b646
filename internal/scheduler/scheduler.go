// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/config"
	"github.com/jolks/mcp-pingr/internal/logging"
	"github.com/jolks/mcp-pingr/internal/model"
	"github.com/robfig/cron/v3"
)

var errStopped = stderrors.New("scheduler stopped")

// notificationScheduler scans the task store on a fixed interval
type notificationScheduler struct {
	cron     *cron.Cron
	source   DueSource
	notifier model.Notifier
	clock    clock.Clock
	title    string
	logger   *logging.Logger

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	stopped   atomic.Bool
	listeners []func()
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.SchedulerConfig, source DueSource, notifier model.Notifier, clk clock.Clock, logger *logging.Logger) (Scheduler, error) {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if clk == nil {
		clk = clock.System{}
	}
	interval := cfg.Interval
	if interval < time.Second {
		interval = time.Second
	}
	title := cfg.NotificationTitle
	if title == "" {
		title = "Pingr"
	}

	cl := cronLogger{logger}
	s := &notificationScheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(
				cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(
				cron.SkipIfStillRunning(cl),
				cron.Recover(cl),
			),
			cron.WithLogger(cl),
		),
		source:   source,
		notifier: notifier,
		clock:    clk,
		title:    title,
		logger:   logger,
	}

	if _, err := s.cron.AddFunc("@every "+interval.String(), s.tick); err != nil {
		return nil, fmt.Errorf("failed to schedule scan: %w", err)
	}
	return s, nil
}

// Start begins the periodic scan and runs one immediately
func (s *notificationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.running = true
	s.stopped.Store(false)
	s.cron.Start()
	s.mu.Unlock()

	if _, err := s.RunOnce(runCtx); err != nil {
		s.logger.Errorf("initial scan failed: %v", err)
	}

	// Listen for context cancellation to stop the scheduler
	go func() {
		<-runCtx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping scheduler: %v", err)
		}
	}()
	return nil
}

// Stop halts the scan and waits for an in-flight one to finish. It is safe
// to call more than once.
func (s *notificationScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped.Store(true)
	s.cancel()
	done := s.cron.Stop()
	s.mu.Unlock()

	<-done.Done()
	return nil
}

// RunOnce delivers every due task and returns how many were marked notified
func (s *notificationScheduler) RunOnce(ctx context.Context) (int, error) {
	if s.stopped.Load() {
		return 0, nil
	}
	marked, err := s.source.NotifyDue(ctx, s.clock.Now(), func(t *model.Task) error {
		if s.stopped.Load() {
			return errStopped
		}
		return s.notifier.Deliver(ctx, s.title, t.Content)
	})
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		s.logger.Infof("delivered %d reminder(s)", marked)
		s.emitChanged()
	}
	return marked, nil
}

// OnTasksChanged registers fn to run once after every scan that marked tasks
func (s *notificationScheduler) OnTasksChanged(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *notificationScheduler) tick() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Errorf("scan failed: %v", err)
	}
}

func (s *notificationScheduler) emitChanged() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// cronLogger routes cron's own logging through our logger. Its per-tick
// chatter stays at debug level.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugf("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
