package slothint

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"kmdcal/internal/model"
)

// WeekdayTBD marks an undecided slot.
const WeekdayTBD = "TBD"

var (
	slotTokenRe    = regexp.MustCompile(`^([月火水木金土日])\s*(\d)$`)
	slotSeparators = regexp.MustCompile(`[,，、]`)
)

var kanjiWeekday = map[string]string{
	"月": "Mon",
	"火": "Tue",
	"水": "Wed",
	"木": "Thu",
	"金": "Fri",
	"土": "Sat",
	"日": "Sun",
}

// periodRanges is the standard period table of the course homepage.
var periodRanges = map[int]model.SlotRange{
	1: {Start: "09:00", End: "10:30"},
	2: {Start: "10:45", End: "12:15"},
	3: {Start: "13:00", End: "14:30"},
	4: {Start: "14:45", End: "16:15"},
	5: {Start: "16:30", End: "18:00"},
}

// PeriodRange returns the time range of period n.
func PeriodRange(n int) (model.SlotRange, bool) {
	r, ok := periodRanges[n]
	return r, ok
}

// SplitSlotText splits a slot cell such as "月1, 水３、未定" into tokens with
// full-width digits folded to ASCII.
func SplitSlotText(text string) []string {
	var out []string
	for _, part := range slotSeparators.Split(text, -1) {
		tok := strings.TrimSpace(width.Fold.String(part))
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ParseSlotToken turns a token like "月1" into a SlotDetail. Undecided
// tokens get WeekdayTBD and no times; unrecognized tokens get an empty
// weekday.
func ParseSlotToken(token string) SlotDetail {
	raw := token
	t := strings.TrimSpace(width.Fold.String(token))
	if strings.Contains(t, "未定") {
		return SlotDetail{Weekday: WeekdayTBD, Raw: raw}
	}
	m := slotTokenRe.FindStringSubmatch(t)
	if m == nil {
		return SlotDetail{Raw: raw}
	}
	n, _ := strconv.Atoi(m[2])
	d := SlotDetail{Weekday: kanjiWeekday[m[1]], Slot: &n, Raw: raw}
	if r, ok := PeriodRange(n); ok {
		d.Start, d.End = r.Start, r.End
	}
	return d
}
