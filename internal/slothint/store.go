// Package slothint builds the weekday -> time-range table used to fill in
// class times that a schedule block leaves out.
package slothint

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
)

var (
	// ErrNoCourse means no cached course name relates to the page's course.
	ErrNoCourse = errors.New("slothint: no matching course in cache")
	// ErrNoSlots means the matching course has no slot with concrete times.
	ErrNoSlots = errors.New("slothint: matching course has no usable slots")
)

var weekdayCodes = map[string]time.Weekday{
	"Sun": time.Sunday,
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
}

// WeekdayCode returns the three-letter code ("Mon") for wd.
func WeekdayCode(wd time.Weekday) string {
	return wd.String()[:3]
}

// ParseWeekday maps a three-letter code to a time.Weekday.
func ParseWeekday(code string) (time.Weekday, bool) {
	wd, ok := weekdayCodes[code]
	return wd, ok
}

// Entry is one row of the hint table.
type Entry struct {
	Weekday time.Weekday
	Range   model.SlotRange
}

// Store is an immutable weekday -> range table for one course. A nil
// *Store is valid and finds nothing.
type Store struct {
	course string
	hints  map[time.Weekday]model.SlotRange
}

// Build picks the course in p matching pageCourse and indexes its slots.
//
// Matching compares normalized names (whitespace removed, width and case
// folded): exact match first, then stored-contains-page, then
// page-contains-stored, in cache order. Only the first accepted course
// contributes.
func Build(p *Payload, pageCourse string) (*Store, error) {
	if p == nil || len(p.Courses) == 0 {
		return nil, ErrNoCourse
	}
	c, ok := MatchCourse(p.Courses, pageCourse)
	if !ok {
		return nil, ErrNoCourse
	}

	details := c.SlotDetails
	if len(details) == 0 && len(c.Slots) > 0 {
		// Older caches only carry raw tokens.
		for _, tok := range c.Slots {
			details = append(details, ParseSlotToken(tok))
		}
	}

	hints := make(map[time.Weekday]model.SlotRange)
	for _, d := range details {
		wd, ok := ParseWeekday(d.Weekday)
		if !ok {
			continue
		}
		start, okS := normalizeClock(d.Start)
		end, okE := normalizeClock(d.End)
		if !okS || !okE {
			continue
		}
		// Later details for the same weekday replace earlier ones.
		hints[wd] = model.SlotRange{Start: start, End: end}
	}
	if len(hints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSlots, c.Name)
	}

	appLog.Debug("slot hints built", "course", c.Name, "entries", len(hints))
	return &Store{course: c.Name, hints: hints}, nil
}

// MatchCourse returns the first course whose name relates to name.
func MatchCourse(courses []Course, name string) (Course, bool) {
	key := NormalizeName(name)
	if key == "" {
		return Course{}, false
	}
	for _, c := range courses {
		cn := NormalizeName(c.Name)
		if cn == "" {
			continue
		}
		if cn == key || strings.Contains(cn, key) || strings.Contains(key, cn) {
			return c, true
		}
	}
	return Course{}, false
}

var folder = cases.Fold()

// NormalizeName strips all whitespace and folds width and case.
func NormalizeName(s string) string {
	s = width.Fold.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return folder.String(s)
}

// Lookup returns the range for wd.
func (s *Store) Lookup(wd time.Weekday) (model.SlotRange, bool) {
	if s == nil {
		return model.SlotRange{}, false
	}
	r, ok := s.hints[wd]
	return r, ok
}

// Course returns the cached course name the store was built from.
func (s *Store) Course() string {
	if s == nil {
		return ""
	}
	return s.course
}

// Len returns the number of weekdays with a hint.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.hints)
}

// Entries returns the table sorted Monday first.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.hints))
	for wd, r := range s.hints {
		out = append(out, Entry{Weekday: wd, Range: r})
	}
	sort.Slice(out, func(i, j int) bool {
		return mondayFirst(out[i].Weekday) < mondayFirst(out[j].Weekday)
	})
	return out
}

func mondayFirst(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// normalizeClock accepts "H:MM" or "HH:MM" and returns "HH:MM".
func normalizeClock(s string) (string, bool) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return "", false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 || mm < 0 || mm > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hh, mm), true
}
