// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"context"
	"strconv"
	"time"
)

// ReferenceType tags which variant of a TimeReference is populated
type ReferenceType string

// Time reference variants
const (
	// RelativeMinutes is "dans N minutes [S]"
	RelativeMinutes ReferenceType = "relative_minutes"
	// RelativeHours is "dans N heures [M]"
	RelativeHours ReferenceType = "relative_hours"
	// RelativeDays is "dans N jours"
	RelativeDays ReferenceType = "relative_days"
	// SpecificDay is a weekday name or a today/tomorrow keyword, with an optional time of day
	SpecificDay ReferenceType = "specific_day"
)

// String returns the string representation of the reference type
func (t ReferenceType) String() string {
	return string(t)
}

// TimeReference is the structured time hint found in a task's text.
// Only the fields relevant to Type are set; the rest stay nil.
type TimeReference struct {
	Type    ReferenceType `json:"type"`
	Match   string        `json:"match"`
	Keyword *string       `json:"keyword"`
	Days    *int          `json:"days"`
	Hours   *int          `json:"hours"`
	Minutes *int          `json:"minutes"`
	Seconds *int          `json:"seconds"`
}

// Key returns a comparison key covering the type and every numeric field.
// Two references with the same key resolve to the same instant for a given now.
func (r *TimeReference) Key() string {
	if r == nil {
		return ""
	}
	kw := ""
	if r.Keyword != nil {
		kw = *r.Keyword
	}
	return string(r.Type) + "|" + kw + "|" + itoa(r.Hours) + "|" + itoa(r.Minutes) + "|" + itoa(r.Seconds) + "|" + itoa(r.Days)
}

// Equal reports whether two references describe the same time hint
func (r *TimeReference) Equal(other *TimeReference) bool {
	return r.Key() == other.Key()
}

// Clone returns a deep copy of the reference
func (r *TimeReference) Clone() *TimeReference {
	if r == nil {
		return nil
	}
	c := *r
	c.Keyword = cloneString(r.Keyword)
	c.Days = cloneInt(r.Days)
	c.Hours = cloneInt(r.Hours)
	c.Minutes = cloneInt(r.Minutes)
	c.Seconds = cloneInt(r.Seconds)
	return &c
}

// Task represents a reminder. Field names are a stable on-disk contract.
type Task struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	TimeReference *TimeReference `json:"timeReference"`
	Timestamp     *int64         `json:"timestamp"`
	CreatedAt     int64          `json:"createdAt"`
	Completed     bool           `json:"completed"`
	Notified      bool           `json:"notified"`
}

// Due returns the scheduled instant, if any
func (t *Task) Due() (time.Time, bool) {
	if t.Timestamp == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*t.Timestamp), true
}

// Overdue reports whether the task is scheduled in the past and not completed
func (t *Task) Overdue(now time.Time) bool {
	due, ok := t.Due()
	return ok && !t.Completed && due.Before(now)
}

// Pending reports whether the task should be notified at now
func (t *Task) Pending(now time.Time) bool {
	if t.Timestamp == nil || t.Completed || t.Notified {
		return false
	}
	return *t.Timestamp <= now.UnixMilli()
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	c := *t
	c.TimeReference = t.TimeReference.Clone()
	if t.Timestamp != nil {
		ts := *t.Timestamp
		c.Timestamp = &ts
	}
	return &c
}

// Notifier delivers a reminder to the user
type Notifier interface {
	Deliver(ctx context.Context, title, body string) error
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}

// String returns a pointer to v
func String(v string) *string {
	return &v
}

// Millis returns a pointer to the epoch milliseconds of t
func Millis(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func itoa(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
