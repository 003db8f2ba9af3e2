package schedule

import (
	"net/url"
	"strings"
	"testing"

	"kmdcal/internal/model"
)

func TestTemplateURLRoundTrip(t *testing.T) {
	ex := NewExtractor(model.CourseContext{Name: "Systems 101", Location: "協生館 C3S01"}, nil)
	events := ex.Extract("2025-04-07 09:00-10:30\nLecture 1\nIntro & setup")
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]

	link := TemplateURL(ev)
	if !strings.HasPrefix(link, TemplateBaseURL+"?") {
		t.Fatalf("unexpected link %s", link)
	}
	if strings.Contains(link, "+") {
		t.Fatalf("spaces must be percent-encoded: %s", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("action") != "TEMPLATE" {
		t.Fatalf("missing action: %s", link)
	}
	if q.Get("dates") != "20250407T090000/20250407T103000" {
		t.Fatalf("unexpected dates %q", q.Get("dates"))
	}

	back, err := EventFromTemplateURL(link, "")
	if err != nil {
		t.Fatalf("EventFromTemplateURL: %v", err)
	}
	if back.Title != ev.Title || back.Description != ev.Description || back.Location != ev.Location {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, ev)
	}
	if back.Start.String() != ev.Start.String() || back.End.String() != ev.End.String() {
		t.Fatalf("round trip times mismatch: %s..%s vs %s..%s", back.Start, back.End, ev.Start, ev.End)
	}
	if back.Fingerprint != ev.Fingerprint {
		t.Fatalf("fingerprint changed across link: %s vs %s", back.Fingerprint, ev.Fingerprint)
	}
}

func TestEventFromTemplateURLFallbacks(t *testing.T) {
	ev, err := EventFromTemplateURL(TemplateBaseURL+"?action=TEMPLATE&text=Exam&dates=20250728", "Hall A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Start.String() != "2025-07-28T00:00:00" || ev.End.String() != ev.Start.String() {
		t.Fatalf("all-day start should be midnight with end=start: %s..%s", ev.Start, ev.End)
	}
	if ev.Location != "Hall A" {
		t.Fatalf("expected fallback location, got %q", ev.Location)
	}
	if ev.Fingerprint != Fingerprint("Exam", "2025-07-28T00:00:00", "2025-07-28T00:00:00", "Hall A") {
		t.Fatalf("unexpected fingerprint %s", ev.Fingerprint)
	}

	for _, bad := range []string{
		TemplateBaseURL + "?text=x",
		TemplateBaseURL + "?dates=/20250101T000000",
		TemplateBaseURL + "?dates=2025",
	} {
		if _, err := EventFromTemplateURL(bad, ""); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}
