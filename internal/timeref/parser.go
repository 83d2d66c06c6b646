// SPDX-License-Identifier: AGPL-3.0-only

// Package timeref finds time hints in free text ("dans 10 minutes",
// "demain à 14h", "vendredi") and resolves them to absolute instants.
package timeref

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jolks/mcp-pingr/internal/model"
)

// Matcher attempts to recognise one kind of time hint in text
type Matcher interface {
	Match(text string) (*model.TimeReference, bool)
}

// Parser evaluates its matchers in order; the first match wins
type Parser struct {
	matchers []Matcher
}

// NewParser creates a parser. Without arguments it uses DefaultMatchers.
func NewParser(matchers ...Matcher) *Parser {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Parser{matchers: matchers}
}

var defaultParser = NewParser()

// Parse runs the default parser over text
func Parse(text string) *model.TimeReference {
	return defaultParser.Parse(text)
}

// Parse returns the first time reference found in text, or nil.
// The returned reference carries the matched substring in Match.
func (p *Parser) Parse(text string) *model.TimeReference {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, m := range p.matchers {
		if ref, ok := m.Match(text); ok {
			return ref
		}
	}
	return nil
}

// DefaultMatchers returns the French grammar in precedence order:
// relative minutes, relative hours, relative days, then a named day.
func DefaultMatchers() []Matcher {
	return []Matcher{
		relativeMinutes,
		relativeHours,
		relativeDays,
		specificDay,
	}
}

// pattern matches a regular expression and builds a reference from its named groups
type pattern struct {
	typ   model.ReferenceType
	re    *regexp.Regexp
	build func(ref *model.TimeReference, groups map[string]string) bool
}

// Match implements Matcher
func (p *pattern) Match(text string) (*model.TimeReference, bool) {
	for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
		if !standalone(text, loc[0], loc[1]) {
			continue
		}
		groups := make(map[string]string)
		for i, name := range p.re.SubexpNames() {
			if name != "" && loc[2*i] >= 0 && loc[2*i+1] > loc[2*i] {
				groups[name] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		ref := &model.TimeReference{Type: p.typ, Match: text[loc[0]:loc[1]]}
		if !p.build(ref, groups) {
			return nil, false
		}
		return ref, true
	}
	return nil, false
}

// standalone rejects matches glued to an accented letter. RE2's \b only
// knows ASCII word characters, so "révendredi" would otherwise match.
func standalone(text string, start, end int) bool {
	if before, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && unicode.IsLetter(before) {
		return false
	}
	if after, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && unicode.IsLetter(after) {
		return false
	}
	return true
}

// Relative amounts start at 1; trailing seconds and minutes are 0-59.
var (
	relativeMinutes = &pattern{
		typ: model.RelativeMinutes,
		re:  regexp.MustCompile(`(?i)\b(?:dans|après)\s+(?P<minutes>[1-9]\d*)\s*(?:m(?:in(?:s)?)?|minutes?)(?:\s*(?P<seconds>[1-5]?\d))?\b`),
		build: func(ref *model.TimeReference, g map[string]string) bool {
			return number(g, "minutes", &ref.Minutes, true) && number(g, "seconds", &ref.Seconds, false)
		},
	}
	relativeHours = &pattern{
		typ: model.RelativeHours,
		re:  regexp.MustCompile(`(?i)\b(?:dans|après)\s+(?P<hours>[1-9]\d*)\s*(?:h(?:r?s?)?|heures?)(?:\s*(?P<minutes>[1-5]?\d))?\b`),
		build: func(ref *model.TimeReference, g map[string]string) bool {
			return number(g, "hours", &ref.Hours, true) && number(g, "minutes", &ref.Minutes, false)
		},
	}
	relativeDays = &pattern{
		typ: model.RelativeDays,
		re:  regexp.MustCompile(`(?i)\b(?:dans|après)\s+(?P<days>[1-9]\d*)\s+jours?\b`),
		build: func(ref *model.TimeReference, g map[string]string) bool {
			return number(g, "days", &ref.Days, true)
		},
	}
	specificDay = &pattern{
		typ: model.SpecificDay,
		re:  regexp.MustCompile(`(?i)\b(?P<keyword>lundi|mardi|mercredi|jeudi|vendredi|samedi|dimanche|aujourd['’]hui|auj|demain|dem|après-demain)\b(?:\s+à\s+(?P<hours>[01]?\d|2[0-3])h(?:\s*(?P<minutes>[0-5]\d))?)?`),
		build: func(ref *model.TimeReference, g map[string]string) bool {
			kw := normalizeKeyword(g["keyword"])
			ref.Keyword = &kw
			return number(g, "hours", &ref.Hours, false) && number(g, "minutes", &ref.Minutes, false)
		},
	}
)

// number stores the named group in dst. A missing optional group leaves dst nil.
func number(groups map[string]string, name string, dst **int, required bool) bool {
	s, ok := groups[name]
	if !ok {
		return !required
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return false
	}
	*dst = &n
	return true
}

func normalizeKeyword(kw string) string {
	return strings.ReplaceAll(strings.ToLower(kw), "’", "'")
}
