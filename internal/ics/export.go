// Package ics writes resolved events and weekly slot hints as iCalendar
// and reads exported files back.
package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/schedule"
	"kmdcal/internal/slothint"
)

const (
	productID = "-//kmdcal//schedule export//EN"
	uidDomain = "kmdcal"

	// propFingerprint carries the event fingerprint next to the UID.
	propFingerprint = ical.ComponentProperty("X-KMDCAL-FINGERPRINT")
	// propInferred marks events whose time came from a slot hint.
	propInferred = ical.ComponentProperty("X-KMDCAL-INFERRED")
)

// Options controls calendar-level properties.
type Options struct {
	Name     string
	TimeZone string
	Location *time.Location
	// Now stamps DTSTAMP; defaults to time.Now.
	Now func() time.Time
}

func (o Options) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.Local
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func newCalendar(o Options) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if o.Name != "" {
		cal.SetXWRCalName(o.Name)
	}
	if o.TimeZone != "" {
		cal.SetXWRTimezone(o.TimeZone)
	}
	return cal
}

// UID returns the iCalendar UID used for a fingerprint.
func UID(fp string) string {
	return fp + "@" + uidDomain
}

// Export writes events as one VEVENT each. Events are keyed by fingerprint,
// so re-importing an export into a calendar app updates instead of duplicating.
func Export(w io.Writer, events []model.ResolvedEvent, o Options) error {
	cal := newCalendar(o)
	stamp := o.now().UTC()
	loc := o.loc()

	for _, ev := range events {
		fp := ev.Fingerprint
		if fp == "" {
			fp = schedule.FingerprintEvent(ev)
		}
		end := ev.End
		if end.IsZero() {
			end = ev.Start
		}

		ve := cal.AddEvent(UID(fp))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.Start.In(loc))
		ve.SetEndAt(end.In(loc))
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		ve.SetProperty(propFingerprint, fp)
		if ev.Inferred {
			ve.SetProperty(propInferred, "TRUE")
		}
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	appLog.Debug("ics export written", "events", len(events))
	return nil
}

// ExportSlots writes one weekly recurring VEVENT per slot hint, bounded by
// from and until.
func ExportSlots(w io.Writer, hints *slothint.Store, from, until time.Time, o Options) error {
	cal := newCalendar(o)
	stamp := o.now().UTC()
	loc := o.loc()

	for _, e := range hints.Entries() {
		r, dur, err := slothint.Rule(e, from, until, loc)
		if err != nil {
			return err
		}
		first := r.After(r.OrigOptions.Dtstart, true)
		if first.IsZero() {
			continue
		}
		code := slothint.WeekdayCode(e.Weekday)
		ve := cal.AddEvent(fmt.Sprintf("slot-%s-%s@%s", code, first.Format("20060102"), uidDomain))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(first)
		ve.SetEndAt(first.Add(dur))
		ve.SetSummary(hints.Course())
		ve.AddRrule(r.OrigOptions.RRuleString())
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	return nil
}
