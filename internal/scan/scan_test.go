package scan

import (
	"strings"
	"testing"
	"time"

	"kmdcal/internal/model"
	"kmdcal/internal/schedule"
	"kmdcal/internal/slothint"
)

const coursePage = `<!DOCTYPE html>
<html><head>
<title>e-learning</title>
<script>var s = "<p>2025-01-01 10:00-11:00<br>Script</p>";</script>
</head><body>
<h2>システム論 <span class="en">Systems 101</span></h2>
<table>
<tr><th>開講場所 / Class Room</th><td>
  協生館 C3S01
  (Hiyoshi)
</td></tr>
</table>
<p>2025-04-07 (Mon) 09:00-10:30<br>Lecture 1<br>Intro</p>
<p>Office hours are posted separately.</p>
<a href="/x"><span>2025-04-08 10:00-11:00<br>Inside a link</span></a>
<li>2025/04/14 - Orientation</li>
<p>2025-04-21 09:00-10:30<br><b>Bold</b> title</p>
<noscript><p>2025-04-28 09:00-10:30<br>Hidden</p></noscript>
<span>See 2025-05-01 for details</span>
</body></html>`

func TestCandidates(t *testing.T) {
	page, err := ParseString(coursePage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cands := page.Candidates()
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(cands), cands)
	}
	if cands[0].Tag != "p" || cands[0].Text != "2025-04-07 (Mon) 09:00-10:30\nLecture 1\nIntro" {
		t.Fatalf("unexpected first candidate %+v", cands[0])
	}
	if cands[1].Tag != "li" || cands[1].Text != "2025/04/14 - Orientation" {
		t.Fatalf("unexpected second candidate %+v", cands[1])
	}
	if texts := page.Texts(); len(texts) != 2 || texts[1] != cands[1].Text {
		t.Fatalf("Texts out of step with Candidates: %q", texts)
	}
}

func TestCandidatesWithSourceLineBreaks(t *testing.T) {
	page, err := ParseString("<p>2025-04-07 (Mon) 09:00-10:30<br>\nLecture 1<br>\nIntro</p>\n" +
		"<li>2025/04/14 13:00-14:30 -\n  Orientation\n</li>")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	texts := page.Texts()
	if len(texts) != 2 || texts[0] != "2025-04-07 (Mon) 09:00-10:30\n\nLecture 1\n\nIntro" {
		t.Fatalf("unexpected texts %q", texts)
	}

	events := schedule.NewExtractor(model.CourseContext{Name: "Systems 101"}, nil).ExtractAll(texts)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	ev := events[0]
	if ev.Start.String() != "2025-04-07T09:00:00" || ev.End.String() != "2025-04-07T10:30:00" {
		t.Fatalf("unexpected range %s..%s", ev.Start, ev.End)
	}
	if !strings.Contains(ev.Title, "Lecture 1") || ev.Description != "Intro" {
		t.Fatalf("unexpected event %q / %q", ev.Title, ev.Description)
	}
	if !strings.Contains(events[1].Title, "Orientation") {
		t.Fatalf("unexpected second event %q", events[1].Title)
	}
}

func TestCourseContext(t *testing.T) {
	page, err := ParseString(coursePage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := page.CourseContext()
	if ctx.Name != "Systems 101" {
		t.Fatalf("unexpected name %q", ctx.Name)
	}
	if ctx.Location != "協生館 C3S01" {
		t.Fatalf("unexpected location %q", ctx.Location)
	}
}

func TestCourseNameFallsBackToHeading(t *testing.T) {
	page, err := ParseString("<h1>  Media\n Design  </h1><h2><span class=\"en\"> </span></h2>")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := page.CourseName(); got != "Media Design" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := page.CourseLocation(); got != "" {
		t.Fatalf("expected no location, got %q", got)
	}
}

const homepage = `<html><body>
<ul class="news"><li>トップページを2025年度春学期用に切り替えました</li></ul>
<b>2025年度春学期 授業一覧</b>
<table>
<tr><td><a href="e_class_top.cgi?id=1">Systems  101</a></td><td>Prof. A</td><td>月1, 木３</td></tr>
<tr><td><a href="e_class_top.cgi?id=2">Media Design Studio</a></td><td>未定未定</td></tr>
<tr><td><a href="e_class_top.cgi?id=3">Reading Group</a></td><td>Prof. B</td></tr>
<tr><td><a href="/other">Not a course</a></td><td>火2</td></tr>
</table>
</body></html>`

func TestHomepageCourses(t *testing.T) {
	page, err := ParseString(homepage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !page.IsHomepage() {
		t.Fatal("expected homepage detection")
	}
	if got := page.TermLabel(); got != "2025年度春学期 授業一覧" {
		t.Fatalf("unexpected term label %q", got)
	}

	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	p := page.SlotPayload(now)
	if p == nil || len(p.Courses) != 3 {
		t.Fatalf("expected 3 courses, got %+v", p)
	}
	if !p.CachedTime().Equal(now) {
		t.Fatalf("unexpected cachedAt %v", p.CachedTime())
	}

	sys := p.Courses[0]
	if sys.Name != "Systems 101" || sys.URL != "e_class_top.cgi?id=1" {
		t.Fatalf("unexpected course %+v", sys)
	}
	if len(sys.Slots) != 2 || sys.Slots[1] != "木3" {
		t.Fatalf("unexpected slots %q", sys.Slots)
	}
	if d := sys.SlotDetails[1]; d.Weekday != "Thu" || d.Start != "13:00" || d.End != "14:30" {
		t.Fatalf("unexpected slot detail %+v", d)
	}
	if d := p.Courses[1].SlotDetails; len(d) != 1 || d[0].Weekday != slothint.WeekdayTBD {
		t.Fatalf("expected a TBD slot, got %+v", d)
	}
	if len(p.Courses[2].Slots) != 0 {
		t.Fatalf("expected no slots, got %q", p.Courses[2].Slots)
	}

	store, err := slothint.Build(p, "Systems 101")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 hints, got %d", store.Len())
	}
}

func TestNotHomepage(t *testing.T) {
	page, err := ParseString(coursePage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if page.IsHomepage() {
		t.Fatal("course page must not look like the homepage")
	}
	if p := page.SlotPayload(time.Now()); p != nil {
		t.Fatalf("expected no payload, got %+v", p)
	}
}
