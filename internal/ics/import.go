package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
)

// Import reads VEVENTs from an iCalendar stream as resolved events, with
// times converted to wall-clock values in loc. The fingerprint comes from
// the X-KMDCAL-FINGERPRINT property or a kmdcal UID; other events get none.
func Import(r io.Reader, loc *time.Location) ([]model.ResolvedEvent, error) {
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	var out []model.ResolvedEvent
	for _, ve := range cal.Events() {
		ev, err := importEvent(ve, loc)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "uid", ve.Id())
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func importEvent(ve *ical.VEvent, loc *time.Location) (model.ResolvedEvent, error) {
	var ev model.ResolvedEvent
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("dtstart: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	ev.Start = wallClock(start, loc)
	ev.End = wallClock(end, loc)

	if p := ve.GetProperty(propFingerprint); p != nil {
		ev.Fingerprint = p.Value
	} else if fp, ok := strings.CutSuffix(ve.Id(), "@"+uidDomain); ok {
		ev.Fingerprint = fp
	}
	if p := ve.GetProperty(propInferred); p != nil {
		ev.Inferred = strings.EqualFold(p.Value, "TRUE")
	}
	if ev.Start.IsZero() {
		return ev, errors.New("missing start")
	}
	return ev, nil
}

func wallClock(t time.Time, loc *time.Location) model.LocalDateTime {
	t = t.In(loc)
	return model.NewLocalDateTime(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Fingerprints returns the non-empty fingerprints of events, in order.
func Fingerprints(events []model.ResolvedEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Fingerprint != "" {
			out = append(out, ev.Fingerprint)
		}
	}
	return out
}
