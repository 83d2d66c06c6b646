// SPDX-License-Identifier: AGPL-3.0-only
package clock

import (
	"sync"
	"time"
)

// Clock is the wall-clock source used by the store and the scheduler
type Clock interface {
	Now() time.Time
}

// System reads the local wall clock
type System struct{}

// Now implements Clock
func (System) Now() time.Time {
	return time.Now()
}

// Manual is a Clock that only moves when told to
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to now
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

// Now implements Clock
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
