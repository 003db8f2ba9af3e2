package scan

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"kmdcal/internal/slothint"
)

// courseLinkMarker identifies course links in the homepage course table.
const courseLinkMarker = "e_class_top.cgi?"

var slotCellRe = regexp.MustCompile(`[月火水木金土日][0-9０-９]|未定`)

// IsHomepage reports whether the page is the term course overview. The
// portal announces it with a news item about switching the top page.
func (p *Page) IsHomepage() bool {
	for _, li := range findAll(p.root, func(n *html.Node) bool { return n.DataAtom == atom.Li }) {
		text := collapse(textContent(li))
		if strings.Contains(text, "トップページ") && strings.Contains(text, "切り替え") {
			return true
		}
	}
	return false
}

// TermLabel returns the first bold text naming the course list.
func (p *Page) TermLabel() string {
	for _, b := range findAll(p.root, func(n *html.Node) bool { return n.DataAtom == atom.B }) {
		if t := strings.TrimSpace(textContent(b)); strings.Contains(t, "授業一覧") {
			return t
		}
	}
	return ""
}

// HomepageCourses scrapes the course table: one course per course link,
// with the slot cell taken from the rightmost cell of its row that looks
// like weekday/period tokens.
func (p *Page) HomepageCourses() []slothint.Course {
	links := findAll(p.root, func(n *html.Node) bool {
		return n.DataAtom == atom.A && strings.Contains(attr(n, "href"), courseLinkMarker)
	})
	var out []slothint.Course
	for _, a := range links {
		row := closest(a, atom.Tr)
		if row == nil {
			continue
		}
		cells := findAll(row, func(n *html.Node) bool { return n.DataAtom == atom.Td })
		if len(cells) == 0 {
			continue
		}
		slotText := ""
		for i := len(cells) - 1; i >= 0; i-- {
			raw := textContent(cells[i])
			if slotCellRe.MatchString(wsRe.ReplaceAllString(raw, "")) {
				slotText = strings.TrimSpace(raw)
				break
			}
		}

		c := slothint.Course{
			Name: collapse(textContent(a)),
			URL:  attr(a, "href"),
		}
		for _, tok := range slothint.SplitSlotText(slotText) {
			c.Slots = append(c.Slots, tok)
			c.SlotDetails = append(c.SlotDetails, slothint.ParseSlotToken(tok))
		}
		out = append(out, c)
	}
	return out
}

// SlotPayload builds the cacheable slot payload from a homepage. It
// returns nil when the page lists no courses.
func (p *Page) SlotPayload(now time.Time) *slothint.Payload {
	courses := p.HomepageCourses()
	if len(courses) == 0 {
		return nil
	}
	return &slothint.Payload{
		CachedAt:  now.UnixMilli(),
		TermLabel: p.TermLabel(),
		Courses:   courses,
	}
}
