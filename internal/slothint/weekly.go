package slothint

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// Occurrence is one concrete class session generated from a hint.
type Occurrence struct {
	Weekday time.Weekday
	Start   time.Time
	End     time.Time
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Rule builds the weekly recurrence for e, starting on the first matching
// weekday on or after from and ending at until. The returned duration is the
// session length.
func Rule(e Entry, from, until time.Time, loc *time.Location) (*rrule.RRule, time.Duration, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := clockOn(from, e.Range.Start, loc)
	if err != nil {
		return nil, 0, err
	}
	end, err := clockOn(from, e.Range.End, loc)
	if err != nil {
		return nil, 0, err
	}
	if end.Before(start) {
		return nil, 0, fmt.Errorf("slot %s ends before it starts", WeekdayCode(e.Weekday))
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[e.Weekday]},
		Dtstart:   start,
		Until:     until,
	})
	if err != nil {
		return nil, 0, err
	}
	return r, end.Sub(start), nil
}

// Weekly expands every hint into sessions between from and until
// (inclusive), ordered by start time.
func (s *Store) Weekly(from, until time.Time, loc *time.Location) ([]Occurrence, error) {
	if until.Before(from) {
		return nil, errors.New("slothint: until is before from")
	}
	if loc == nil {
		loc = time.Local
	}
	var out []Occurrence
	for _, e := range s.Entries() {
		r, dur, err := Rule(e, from, until, loc)
		if err != nil {
			return nil, err
		}
		for _, st := range r.Between(from.In(loc), until.In(loc), true) {
			out = append(out, Occurrence{Weekday: e.Weekday, Start: st, End: st.Add(dur)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// clockOn returns day's date at "HH:MM" in loc.
func clockOn(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", hhmm, err)
	}
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
