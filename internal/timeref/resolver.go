// SPDX-License-Identifier: AGPL-3.0-only
package timeref

import (
	"math"
	"time"

	"github.com/jolks/mcp-pingr/internal/model"
)

// DefaultHour is the time of day used when a day keyword has no "à Hh"
const DefaultHour = 8

// Resolver turns a TimeReference into an absolute instant relative to now
type Resolver struct {
	defaultHour int
}

// NewResolver creates a resolver. Out of range hours fall back to DefaultHour.
func NewResolver(defaultHour int) *Resolver {
	if defaultHour < 0 || defaultHour > 23 {
		defaultHour = DefaultHour
	}
	return &Resolver{defaultHour: defaultHour}
}

// Resolve returns the instant ref points to, in now's location.
// It returns false for a nil reference, a malformed one, or an unknown day keyword.
func (r *Resolver) Resolve(ref *model.TimeReference, now time.Time) (time.Time, bool) {
	if ref == nil {
		return time.Time{}, false
	}
	switch ref.Type {
	case model.RelativeMinutes:
		if !positive(ref.Minutes) {
			return time.Time{}, false
		}
		return addUnits(now, *ref.Minutes, time.Minute, value(ref.Seconds), time.Second)
	case model.RelativeHours:
		if !positive(ref.Hours) {
			return time.Time{}, false
		}
		return addUnits(now, *ref.Hours, time.Hour, value(ref.Minutes), time.Minute)
	case model.RelativeDays:
		if !positive(ref.Days) {
			return time.Time{}, false
		}
		return now.AddDate(0, 0, *ref.Days), true
	case model.SpecificDay:
		return r.resolveDay(ref, now)
	default:
		return time.Time{}, false
	}
}

func (r *Resolver) resolveDay(ref *model.TimeReference, now time.Time) (time.Time, bool) {
	if ref.Keyword == nil {
		return time.Time{}, false
	}
	day, ok := lookupDay(*ref.Keyword)
	if !ok {
		return time.Time{}, false
	}

	offset := day.offset
	if day.weekday {
		// a bare weekday never means today: same weekday is one week out
		offset = (int(day.target) - int(now.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
	}

	hour := r.defaultHour
	if ref.Hours != nil {
		hour = *ref.Hours
	}
	minute := value(ref.Minutes)
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}

	y, m, d := now.Date()
	return time.Date(y, m, d+offset, hour, minute, 0, 0, now.Location()), true
}

// addUnits adds a*ua + b*ub to now, refusing amounts that overflow a Duration
func addUnits(now time.Time, a int, ua time.Duration, b int, ub time.Duration) (time.Time, bool) {
	if b < 0 || !withinBound(a, ua) || !withinBound(b, ub) {
		return time.Time{}, false
	}
	return now.Add(time.Duration(a)*ua + time.Duration(b)*ub), true
}

func positive(p *int) bool {
	return p != nil && *p > 0
}

func value(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

type dayKeyword struct {
	offset  int
	weekday bool
	target  time.Weekday
}

var dayKeywords = map[string]dayKeyword{
	"aujourd'hui":        {offset: 0},
	"auj":                {offset: 0},
	"today":              {offset: 0},
	"demain":             {offset: 1},
	"dem":                {offset: 1},
	"tomorrow":           {offset: 1},
	"après-demain":       {offset: 2},
	"apres-demain":       {offset: 2},
	"day-after-tomorrow": {offset: 2},

	"dimanche": {weekday: true, target: time.Sunday},
	"lundi":    {weekday: true, target: time.Monday},
	"mardi":    {weekday: true, target: time.Tuesday},
	"mercredi": {weekday: true, target: time.Wednesday},
	"jeudi":    {weekday: true, target: time.Thursday},
	"vendredi": {weekday: true, target: time.Friday},
	"samedi":   {weekday: true, target: time.Saturday},

	"sunday":    {weekday: true, target: time.Sunday},
	"monday":    {weekday: true, target: time.Monday},
	"tuesday":   {weekday: true, target: time.Tuesday},
	"wednesday": {weekday: true, target: time.Wednesday},
	"thursday":  {weekday: true, target: time.Thursday},
	"friday":    {weekday: true, target: time.Friday},
	"saturday":  {weekday: true, target: time.Saturday},
}

func lookupDay(keyword string) (dayKeyword, bool) {
	d, ok := dayKeywords[normalizeKeyword(keyword)]
	return d, ok
}

// Shift moves t by n units of the reference type's own unit: minutes,
// hours or calendar days. Named days have no implied unit. Shifts whose
// magnitude would overflow a Duration are refused, the same bound Resolve
// applies.
func Shift(typ model.ReferenceType, t time.Time, n int) (time.Time, bool) {
	switch typ {
	case model.RelativeMinutes:
		if !withinBound(n, time.Minute) {
			return t, false
		}
		return t.Add(time.Duration(n) * time.Minute), true
	case model.RelativeHours:
		if !withinBound(n, time.Hour) {
			return t, false
		}
		return t.Add(time.Duration(n) * time.Hour), true
	case model.RelativeDays:
		if !withinBound(n, 24*time.Hour) {
			return t, false
		}
		return t.AddDate(0, 0, n), true
	default:
		return t, false
	}
}

func withinBound(n int, unit time.Duration) bool {
	limit := math.MaxInt64 / int64(unit) / 2
	return int64(n) <= limit && int64(n) >= -limit
}
