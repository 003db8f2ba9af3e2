package schedule

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"kmdcal/internal/model"
)

// TemplateBaseURL is the calendar UI endpoint for prefilled event creation.
const TemplateBaseURL = "https://www.google.com/calendar/render"

// TemplateURL builds the "add to calendar" deep link for ev. Dates are
// YYYYMMDDTHHMMSS without offset; the calendar UI reads them as local time.
func TemplateURL(ev model.ResolvedEvent) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", ev.Title)
	q.Set("dates", ev.Start.Compact()+"/"+ev.End.Compact())
	q.Set("details", ev.Description)
	if ev.Location != "" {
		q.Set("location", ev.Location)
	}
	return TemplateBaseURL + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// EventFromTemplateURL reads an event back from a deep link, computing its
// fingerprint. fallbackLocation is used when the link has no location.
func EventFromTemplateURL(raw, fallbackLocation string) (model.ResolvedEvent, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return model.ResolvedEvent{}, fmt.Errorf("parse template url: %w", err)
	}
	q := u.Query()
	dates := q.Get("dates")
	if dates == "" {
		return model.ResolvedEvent{}, errors.New("template url has no dates")
	}
	startRaw, endRaw, _ := strings.Cut(dates, "/")
	if startRaw == "" {
		return model.ResolvedEvent{}, errors.New("template url has no start date")
	}
	start, err := parseCompact(startRaw)
	if err != nil {
		return model.ResolvedEvent{}, err
	}
	end := start
	if endRaw != "" {
		if end, err = parseCompact(endRaw); err != nil {
			return model.ResolvedEvent{}, err
		}
	}

	loc := q.Get("location")
	if loc == "" {
		loc = fallbackLocation
	}
	ev := model.ResolvedEvent{
		Title:       q.Get("text"),
		Description: q.Get("details"),
		Location:    loc,
		Start:       start,
		End:         end,
	}
	ev.Fingerprint = FingerprintEvent(ev)
	return ev, nil
}

// parseCompact accepts YYYYMMDDTHHMMSS or an all-day YYYYMMDD (midnight).
func parseCompact(s string) (model.LocalDateTime, error) {
	if len(s) < 8 {
		return model.LocalDateTime{}, fmt.Errorf("invalid template date %q", s)
	}
	local := s[0:4] + "-" + s[4:6] + "-" + s[6:8] + "T00:00:00"
	if len(s) >= 15 && s[8] == 'T' {
		local = s[0:4] + "-" + s[4:6] + "-" + s[6:8] + "T" + s[9:11] + ":" + s[11:13] + ":" + s[13:15]
	}
	return model.ParseLocalDateTime(local)
}
