// Package refresh runs the page -> events pipeline: it loads configured
// course pages, keeps the slot-hint cache current from the course overview
// page and holds the latest extracted events for the API.
package refresh

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/scan"
	"kmdcal/internal/schedule"
	"kmdcal/internal/slothint"
)

// Document is what one HTML page yielded.
type Document struct {
	Course model.CourseContext
	Events []model.ResolvedEvent

	// Homepage is set for the course overview page; Payload then holds the
	// scraped slot cache (nil when the page lists no courses) and Events
	// is empty.
	Homepage bool
	Payload  *slothint.Payload

	// HintCourse is the cached course the slot hints came from, if any.
	HintCourse string
}

func isOverview(body []byte) bool {
	p, err := scan.Parse(bytes.NewReader(body))
	return err == nil && p.IsHomepage()
}

// Extract scans one HTML document. Non-empty fields of override replace
// the inferred course context; payload supplies slot hints for dates
// without a time.
func Extract(body []byte, override model.CourseContext, payload *slothint.Payload, now time.Time) (Document, error) {
	p, err := scan.Parse(bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("parse page: %w", err)
	}

	if p.IsHomepage() {
		pl := p.SlotPayload(now)
		n := 0
		if pl != nil {
			n = len(pl.Courses)
		}
		appLog.Info("course overview scraped", "term", p.TermLabel(), "courses", n)
		return Document{Homepage: true, Payload: pl}, nil
	}

	course := p.CourseContext()
	if override.Name != "" {
		course.Name = override.Name
	}
	if override.Location != "" {
		course.Location = override.Location
	}

	hints, err := slothint.Build(payload, course.Name)
	if err != nil && !errors.Is(err, slothint.ErrNoCourse) {
		appLog.Warn("slot hints unavailable", "course", course.Name, "reason", err.Error())
	}

	events := schedule.NewExtractor(course, hints).ExtractAll(p.Texts())
	return Document{
		Course:     course,
		Events:     events,
		HintCourse: hints.Course(),
	}, nil
}
