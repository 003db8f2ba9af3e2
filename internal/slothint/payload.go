package slothint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// SlotDetail is one parsed weekday/period entry of a cached course.
// Start and End are empty for undecided (TBD/未定) slots.
type SlotDetail struct {
	Weekday string `json:"weekday"`
	Slot    *int   `json:"slot"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Raw     string `json:"raw"`
}

// Course is one row of the homepage course list.
type Course struct {
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Slots       []string     `json:"slots"`
	SlotDetails []SlotDetail `json:"slotDetails"`
}

// Payload is the persisted course-list scrape the hints are built from.
type Payload struct {
	CachedAt  int64    `json:"cachedAt"` // epoch milliseconds
	TermLabel string   `json:"termLabel"`
	Courses   []Course `json:"courses"`
}

// CachedTime returns CachedAt as a time.Time (zero if unset).
func (p *Payload) CachedTime() time.Time {
	if p == nil || p.CachedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.CachedAt)
}

// Decode reads a JSON payload.
func Decode(r io.Reader) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode slot payload: %w", err)
	}
	return &p, nil
}

// LoadFile reads a payload from disk. A missing file returns (nil, nil):
// having no cache is a normal state, consulting it simply finds nothing.
func LoadFile(path string) (*Payload, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// SaveFile writes the payload as indented JSON with 0600 permissions.
func SaveFile(path string, p *Payload) error {
	if p == nil {
		return errors.New("slot payload is nil")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
