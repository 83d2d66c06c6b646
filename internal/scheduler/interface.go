// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"time"

	"github.com/jolks/mcp-pingr/internal/model"
)

// Scheduler periodically delivers reminders for due tasks
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	RunOnce(ctx context.Context) (int, error)
	OnTasksChanged(fn func())
}

// DueSource hands out due tasks and records which ones were delivered
type DueSource interface {
	NotifyDue(ctx context.Context, now time.Time, deliver func(*model.Task) error) (int, error)
}
