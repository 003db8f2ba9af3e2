package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LocalLayout is the wall-clock layout used for event start/end values
// before a timezone offset is attached.
const LocalLayout = "2006-01-02T15:04:05"

// MatchKind tells which block grammar produced a ScheduleBlock.
type MatchKind int

const (
	// MatchMultiLine is a date line followed by title line(s) on the next lines.
	MatchMultiLine MatchKind = iota
	// MatchSingleLine is `date - title` on one line.
	MatchSingleLine
)

func (k MatchKind) String() string {
	switch k {
	case MatchMultiLine:
		return "multi-line"
	case MatchSingleLine:
		return "single-line"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// TimeRange holds zero-padded "HH"/"MM" components.
type TimeRange struct {
	StartHH string
	StartMM string
	EndHH   string
	EndMM   string
}

// Start returns "HH:MM".
func (r TimeRange) Start() string { return r.StartHH + ":" + r.StartMM }

// End returns "HH:MM".
func (r TimeRange) End() string { return r.EndHH + ":" + r.EndMM }

// ScheduleBlock is a raw grammar match. Year is kept as captured; Month
// and Day are zero-padded. Time is nil when the header had no time range.
type ScheduleBlock struct {
	Kind MatchKind

	Year  string
	Month string
	Day   string
	Time  *TimeRange

	TitleLine1  string
	TitleLine2  string
	Description string

	// Inferred is set by the resolver when Time came from a slot hint.
	Inferred bool

	// Raw is the matched text; Offset is its byte offset in the buffer.
	Raw    string
	Offset int
}

// Date returns "YYYY-MM-DD".
func (b ScheduleBlock) Date() string {
	return b.Year + "-" + b.Month + "-" + b.Day
}

// LocalDateTime is a wall-clock date-time without an offset.
type LocalDateTime struct {
	t time.Time
}

// NewLocalDateTime builds a LocalDateTime from components.
func NewLocalDateTime(year int, month time.Month, day, hour, min, sec int) LocalDateTime {
	return LocalDateTime{t: time.Date(year, month, day, hour, min, sec, 0, time.UTC)}
}

// ParseLocalDateTime parses "YYYY-MM-DDTHH:MM:SS". A bare "YYYY-MM-DD"
// is accepted as midnight.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	if t, err := time.Parse(LocalLayout, s); err == nil {
		return LocalDateTime{t: t}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return LocalDateTime{}, fmt.Errorf("parse local date-time %q: %w", s, err)
	}
	return LocalDateTime{t: t}, nil
}

// IsZero reports whether the value was never set.
func (l LocalDateTime) IsZero() bool { return l.t.IsZero() }

// String formats as "YYYY-MM-DDTHH:MM:SS".
func (l LocalDateTime) String() string {
	if l.t.IsZero() {
		return ""
	}
	return l.t.Format(LocalLayout)
}

// Compact formats as "YYYYMMDDTHHMMSS" for calendar deep links.
func (l LocalDateTime) Compact() string {
	return l.t.Format("20060102T150405")
}

// Before reports whether l is strictly earlier than o.
func (l LocalDateTime) Before(o LocalDateTime) bool { return l.t.Before(o.t) }

// Weekday returns the day of week of the wall-clock date.
func (l LocalDateTime) Weekday() time.Weekday { return l.t.Weekday() }

// In attaches loc to the wall-clock value.
func (l LocalDateTime) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(l.t.Year(), l.t.Month(), l.t.Day(), l.t.Hour(), l.t.Minute(), l.t.Second(), 0, loc)
}

// WithOffset renders RFC3339 with the numeric offset loc has at that instant.
func (l LocalDateTime) WithOffset(loc *time.Location) string {
	return l.In(loc).Format(time.RFC3339)
}

func (l LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *LocalDateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = LocalDateTime{}
		return nil
	}
	v, err := ParseLocalDateTime(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ResolvedEvent is a fully timed schedule entry ready for sync.
type ResolvedEvent struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	Start       LocalDateTime `json:"start"`
	End         LocalDateTime `json:"end"`
	Fingerprint string        `json:"fingerprint"`

	// Inferred marks events whose time came from a slot hint.
	Inferred bool `json:"inferred,omitempty"`
}

// CourseContext is inferred once per page and shared by all its events.
type CourseContext struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// SlotRange is a weekday time range in "HH:MM".
type SlotRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ItemError is one failed item of a sync batch. Index is set for create
// batches, FP for delete batches.
type ItemError struct {
	Index   *int            `json:"index,omitempty"`
	FP      string          `json:"fp,omitempty"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

// SyncBatchResult summarizes a create or delete batch. OK is true only
// when Errors is empty.
type SyncBatchResult struct {
	BatchID string      `json:"batch_id,omitempty"`
	OK      bool        `json:"ok"`
	Created *int        `json:"created,omitempty"`
	Deleted *int        `json:"deleted,omitempty"`
	Errors  []ItemError `json:"errors"`
}

// Succeeded returns the created or deleted count, whichever is set.
func (r SyncBatchResult) Succeeded() int {
	switch {
	case r.Created != nil:
		return *r.Created
	case r.Deleted != nil:
		return *r.Deleted
	default:
		return 0
	}
}
