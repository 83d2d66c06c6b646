// SPDX-License-Identifier: AGPL-3.0-only
package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// Desktop shows reminders as native desktop notifications
type Desktop struct {
	appIcon string
	notify  func(title, message string, icon any) error
}

// NewDesktop creates a desktop notifier. appName is how the notification
// daemon labels the sender; appIcon is an optional path to a png.
func NewDesktop(appName, appIcon string) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{appIcon: appIcon, notify: beeep.Notify}
}

// Deliver implements model.Notifier
func (d *Desktop) Deliver(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.notify(title, body, d.appIcon)
}
