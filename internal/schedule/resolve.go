package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/slothint"
)

// Resolver infers missing time ranges from slot hints. It does no I/O.
type Resolver struct {
	hints *slothint.Store
}

// NewResolver wraps hints; a nil store makes every inference fail.
func NewResolver(hints *slothint.Store) *Resolver {
	return &Resolver{hints: hints}
}

// InferRange looks up the slot hint for the weekday of year-month-day.
func (r *Resolver) InferRange(year, month, day string) (model.SlotRange, bool) {
	if r == nil {
		return model.SlotRange{}, false
	}
	d, err := civilDate(year, month, day)
	if err != nil {
		return model.SlotRange{}, false
	}
	return r.hints.Lookup(d.Weekday())
}

// Extractor turns flattened page text into resolved events for one course.
type Extractor struct {
	Course   model.CourseContext
	Resolver *Resolver
}

// NewExtractor returns an Extractor for course using hints for inference.
func NewExtractor(course model.CourseContext, hints *slothint.Store) *Extractor {
	return &Extractor{Course: course, Resolver: NewResolver(hints)}
}

// Extract parses text and resolves every block, dropping blocks that
// cannot be timed. The result is in parse order and not deduplicated.
func (e *Extractor) Extract(text string) []model.ResolvedEvent {
	var out []model.ResolvedEvent
	for b := range Parse(text) {
		ev, ok := e.ResolveBlock(b)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// ExtractAll extracts every buffer and removes fingerprint duplicates.
func (e *Extractor) ExtractAll(texts []string) []model.ResolvedEvent {
	var all []model.ResolvedEvent
	for _, t := range texts {
		all = append(all, e.Extract(t)...)
	}
	return Dedup(all)
}

// ResolveBlock completes b into a ResolvedEvent. It reports false when
// the block has no time and no hint, or when its date or times are invalid.
func (e *Extractor) ResolveBlock(b model.ScheduleBlock) (model.ResolvedEvent, bool) {
	if b.Time == nil {
		r, ok := e.Resolver.InferRange(b.Year, b.Month, b.Day)
		if !ok {
			appLog.Debug("schedule block dropped: no slot hint", "date", b.Date(), "title", b.TitleLine1)
			return model.ResolvedEvent{}, false
		}
		sh, sm, _ := strings.Cut(r.Start, ":")
		eh, em, _ := strings.Cut(r.End, ":")
		b.Time = &model.TimeRange{StartHH: sh, StartMM: sm, EndHH: eh, EndMM: em}
		b.Inferred = true
	}

	start, end, err := blockTimes(b)
	if err != nil {
		appLog.Debug("schedule block dropped", "date", b.Date(), "reason", err.Error())
		return model.ResolvedEvent{}, false
	}

	ev := model.ResolvedEvent{
		Title:       e.title(b.TitleLine1),
		Description: joinNonEmpty("\n", b.TitleLine2, b.Description),
		Location:    e.Course.Location,
		Start:       start,
		End:         end,
		Inferred:    b.Inferred,
	}
	ev.Fingerprint = FingerprintEvent(ev)
	return ev, true
}

func (e *Extractor) title(session string) string {
	if e.Course.Name == "" {
		return session
	}
	return e.Course.Name + " - " + session
}

// Dedup keeps the first event of each fingerprint, preserving order.
func Dedup(events []model.ResolvedEvent) []model.ResolvedEvent {
	if len(events) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]model.ResolvedEvent, 0, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.Fingerprint]; dup {
			continue
		}
		seen[ev.Fingerprint] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// Header renders the display header of a timed block:
// "YYYY-MM-DD HH:MM - HH:MM" plus " [inferred]" when applicable.
func Header(b model.ScheduleBlock) string {
	if b.Time == nil {
		return b.Date()
	}
	h := b.Date() + " " + b.Time.Start() + " - " + b.Time.End()
	if b.Inferred {
		h += " [inferred]"
	}
	return h
}

func blockTimes(b model.ScheduleBlock) (model.LocalDateTime, model.LocalDateTime, error) {
	d, err := civilDate(b.Year, b.Month, b.Day)
	if err != nil {
		return model.LocalDateTime{}, model.LocalDateTime{}, err
	}
	sh, sm, err := clock(b.Time.StartHH, b.Time.StartMM)
	if err != nil {
		return model.LocalDateTime{}, model.LocalDateTime{}, err
	}
	eh, em, err := clock(b.Time.EndHH, b.Time.EndMM)
	if err != nil {
		return model.LocalDateTime{}, model.LocalDateTime{}, err
	}
	start := model.NewLocalDateTime(d.Year(), d.Month(), d.Day(), sh, sm, 0)
	end := model.NewLocalDateTime(d.Year(), d.Month(), d.Day(), eh, em, 0)
	if end.Before(start) {
		return model.LocalDateTime{}, model.LocalDateTime{}, fmt.Errorf("end %s before start %s", b.Time.End(), b.Time.Start())
	}
	return start, end, nil
}

// civilDate validates the components; time.Date would silently normalize
// dates such as 2025-02-30.
func civilDate(year, month, day string) (time.Time, error) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil || y <= 0 {
		return time.Time{}, fmt.Errorf("invalid date %s-%s-%s", year, month, day)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date %s-%s-%s", year, month, day)
	}
	return t, nil
}

func clock(hh, mm string) (int, int, error) {
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid time %s:%s", hh, mm)
	}
	return h, m, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
