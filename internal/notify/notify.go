// SPDX-License-Identifier: AGPL-3.0-only

// Package notify delivers due reminders to the user.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jolks/mcp-pingr/internal/clock"
	"github.com/jolks/mcp-pingr/internal/config"
	"github.com/jolks/mcp-pingr/internal/logging"
	"github.com/jolks/mcp-pingr/internal/model"
	"golang.org/x/sync/errgroup"
)

// Log writes reminders to the logger. Handy on headless machines.
type Log struct {
	Logger *logging.Logger
}

// Deliver implements model.Notifier
func (l Log) Deliver(ctx context.Context, title, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	logger.Infof("[%s] %s", title, body)
	return nil
}

// Multi fans a reminder out to several notifiers concurrently. It succeeds
// when at least one of them delivered, so a reminder shown once is not
// repeated because a secondary channel failed.
type Multi struct {
	notifiers []model.Notifier
	logger    *logging.Logger
}

// NewMulti creates a fan-out notifier
func NewMulti(logger *logging.Logger, notifiers ...model.Notifier) *Multi {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

// Deliver implements model.Notifier
func (m *Multi) Deliver(ctx context.Context, title, body string) error {
	results := make([]error, len(m.notifiers))
	var g errgroup.Group
	for i, n := range m.notifiers {
		i, n := i, n
		g.Go(func() error {
			results[i] = n.Deliver(ctx, title, body)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, err := range results {
		if err != nil {
			m.logger.Warnf("notifier %T failed: %v", m.notifiers[i], err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m.notifiers) && len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

// FromConfig builds the notifier described by cfg. appName labels desktop
// notifications and clk stamps webhook payloads.
func FromConfig(cfg config.NotifierConfig, appName string, clk clock.Clock, logger *logging.Logger) (model.Notifier, error) {
	var notifiers []model.Notifier
	for _, kind := range cfg.Kinds() {
		switch kind {
		case "desktop":
			notifiers = append(notifiers, NewDesktop(appName, cfg.AppIcon))
		case "webhook":
			notifiers = append(notifiers, NewWebhook(cfg.WebhookURL, cfg.Timeout, clk))
		case "log":
			notifiers = append(notifiers, Log{Logger: logger})
		default:
			return nil, fmt.Errorf("unsupported notifier %q", kind)
		}
	}
	switch len(notifiers) {
	case 0:
		return Log{Logger: logger}, nil
	case 1:
		return notifiers[0], nil
	default:
		return NewMulti(logger, notifiers...), nil
	}
}
