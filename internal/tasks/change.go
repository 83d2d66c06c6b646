// SPDX-License-Identifier: AGPL-3.0-only
package tasks

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jolks/mcp-pingr/internal/model"
	"github.com/jolks/mcp-pingr/internal/timeref"
)

type changeKind int

const (
	changeKeep changeKind = iota
	changeSet
	changeClear
)

// TimeChange says what an edit does to a task's schedule
type TimeChange struct {
	kind changeKind
	ref  *model.TimeReference
}

// Keep leaves the schedule alone apart from a manual "+N"/"-N" shift
func Keep() TimeChange {
	return TimeChange{kind: changeKeep}
}

// Set reschedules the task from ref. A nil ref clears the schedule.
func Set(ref *model.TimeReference) TimeChange {
	if ref == nil {
		return Clear()
	}
	return TimeChange{kind: changeSet, ref: ref}
}

// Clear removes the schedule
func Clear() TimeChange {
	return TimeChange{kind: changeClear}
}

// ChangeFor derives the change implied by re-parsing edited text: an
// identical reference keeps the schedule, a vanished one clears it, anything
// else replaces it.
func ChangeFor(current, parsed *model.TimeReference) TimeChange {
	switch {
	case current.Equal(parsed):
		return Keep()
	case parsed == nil:
		return Clear()
	default:
		return Set(parsed)
	}
}

// adjustToken is a signed integer standing as its own word, e.g. "+10" or "-5"
var adjustToken = regexp.MustCompile(`(?:^|\s)([+-]\d+)(?:\s|$)`)

// adjust applies the first signed integer token of content to the schedule,
// in the unit of the task's reference. An overdue task is shifted from now
// and re-armed. Tokens that cannot apply leave the task untouched.
func adjust(t *model.Task, content string, now time.Time) {
	loc := adjustToken.FindStringSubmatchIndex(content)
	if loc == nil || t.TimeReference == nil || t.Timestamp == nil {
		return
	}
	start, end := loc[2], loc[3]
	n, err := strconv.Atoi(content[start:end])
	if err != nil || n == 0 {
		return
	}

	base := time.UnixMilli(*t.Timestamp)
	overdue := !base.After(now)
	if overdue {
		base = now
	}
	shifted, ok := timeref.Shift(t.TimeReference.Type, base, n)
	if !ok {
		return
	}

	t.Timestamp = model.Millis(shifted)
	if overdue {
		t.Notified = false
	}
	t.Content = stripToken(content, start, end)
}

func stripToken(content string, start, end int) string {
	left := strings.TrimRightFunc(content[:start], unicode.IsSpace)
	right := strings.TrimLeftFunc(content[end:], unicode.IsSpace)
	if left == "" || right == "" {
		return strings.TrimSpace(left + right)
	}
	return left + " " + right
}
