// Package schedule extracts timed class sessions from flattened page text.
package schedule

import (
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"

	"kmdcal/internal/model"
)

// ws is any whitespace, line breaks and U+3000 included.
const ws = `[\s\x{3000}]`

const weekdayTag = `(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun|月|火|水|木|金|土|日)`

// dateLine matches `YYYY-MM-DD (Mon) HH:MM - HH:MM` with optional weekday
// and time range. Groups: 1 year, 2 month, 3 day, 4-7 start/end h/m.
const dateLine = `(\d{4})[-/](\d{1,2})[-/](\d{1,2})` +
	`(?:` + ws + `*\(` + ws + `*` + weekdayTag + ws + `*\))?` +
	`(?:` + ws + `*(\d{1,2}):(\d{2})` + ws + `*-` + ws + `*(\d{1,2}):(\d{2}))?`

var (
	// DateLineRe finds a date header anywhere in a buffer.
	DateLineRe = regexp.MustCompile(dateLine)

	// lineStartDateRe accepts buffers where some line begins with a header.
	lineStartDateRe = regexp.MustCompile(`(?m)^` + dateLine)

	multiHeadRe  = regexp.MustCompile(dateLine + ws + `*\n`)
	singleHeadRe = regexp.MustCompile(dateLine + ws + `*-` + ws + `*`)
	nextHeaderRe = regexp.MustCompile(`\n` + dateLine)
)

// HasDateLine reports whether some line of text starts with a date header.
func HasDateLine(text string) bool {
	return lineStartDateRe.MatchString(text)
}

// grammar describes one block shape.
type grammar struct {
	kind         model.MatchKind
	head         *regexp.Regexp
	stopOnMarkup bool
}

var grammars = []grammar{
	{kind: model.MatchMultiLine, head: multiHeadRe, stopOnMarkup: true},
	{kind: model.MatchSingleLine, head: singleHeadRe, stopOnMarkup: false},
}

// Parse yields the blocks found in text: every multi-line block first, then
// every single-line block, each in buffer order. Matches of one grammar never
// overlap; the two grammars are not deduplicated against each other.
// Ranging over the sequence again parses text again from the start.
func Parse(text string) iter.Seq[model.ScheduleBlock] {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return func(yield func(model.ScheduleBlock) bool) {
		for _, g := range grammars {
			pos := 0
			for pos < len(text) {
				b, next, ok := g.match(text, pos)
				if !ok {
					break
				}
				pos = next
				if b == nil {
					continue
				}
				if !yield(*b) {
					return
				}
			}
		}
	}
}

// ParseAll collects Parse into a slice.
func ParseAll(text string) []model.ScheduleBlock {
	var out []model.ScheduleBlock
	for b := range Parse(text) {
		out = append(out, b)
	}
	return out
}

// match finds the next block at or after pos. It returns the block (nil
// when a header was found but its body is unusable), the position to resume
// from, and false when no header remains.
func (g grammar) match(text string, pos int) (*model.ScheduleBlock, int, bool) {
	loc := g.head.FindStringSubmatchIndex(text[pos:])
	if loc == nil {
		return nil, len(text), false
	}
	for i := range loc {
		if loc[i] >= 0 {
			loc[i] += pos
		}
	}
	start, bodyStart := loc[0], loc[1]

	body := text[bodyStart:g.limit(text, bodyStart)]
	b, n, ok := buildBlock(g.kind, text, loc, body)
	if !ok {
		// Skip the header only; the body may hold the next header.
		return nil, maxInt(bodyStart, start+1), true
	}
	end := bodyStart + n
	b.Raw = text[start:end]
	b.Offset = start
	return b, maxInt(end, start+1), true
}

// limit returns where the text available to a body starting at from stops:
// the first new date line, '<' (multi-line only), or end of buffer.
func (g grammar) limit(text string, from int) int {
	rest := text[from:]
	end := len(rest)
	if m := nextHeaderRe.FindStringIndex(rest); m != nil {
		end = m[0]
	}
	if g.stopOnMarkup {
		if i := strings.IndexByte(rest, '<'); i >= 0 && i < end {
			end = i
		}
	}
	return from + end
}

// buildBlock reads the title lines and description out of body. Blank lines
// may separate the parts; the description runs until a blank line. It also
// returns how many bytes of body the block consumed.
func buildBlock(kind model.MatchKind, text string, loc []int, body string) (*model.ScheduleBlock, int, bool) {
	group := func(n int) string {
		if loc[2*n] < 0 {
			return ""
		}
		return text[loc[2*n]:loc[2*n+1]]
	}

	title1, end, ok := nextLine(body, 0)
	if !ok {
		return nil, 0, false
	}

	b := &model.ScheduleBlock{
		Kind:       kind,
		Year:       group(1),
		Month:      pad2(group(2)),
		Day:        pad2(group(3)),
		TitleLine1: title1,
	}
	if title2, n, ok := nextLine(body, end); ok {
		b.TitleLine2 = title2
		end = n
		if first, n, ok := nextLine(body, end); ok {
			desc := []string{first}
			end = n
			for end < len(body) {
				line, n := lineAt(body, end+1)
				if line == "" {
					break
				}
				desc = append(desc, line)
				end = n
			}
			b.Description = strings.Join(desc, "\n")
		}
	}
	if loc[8] >= 0 {
		b.Time = &model.TimeRange{
			StartHH: pad2(group(4)),
			StartMM: pad2(group(5)),
			EndHH:   pad2(group(6)),
			EndMM:   pad2(group(7)),
		}
	}
	return b, end, true
}

// lineAt returns the trimmed line starting at i and the offset of its end
// (the '\n' or len(s)).
func lineAt(s string, i int) (string, int) {
	if i >= len(s) {
		return "", len(s)
	}
	end := len(s)
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		end = i + j
	}
	return strings.TrimSpace(s[i:end]), end
}

// nextLine skips blank lines from i and returns the next non-blank line.
func nextLine(s string, i int) (string, int, bool) {
	for i < len(s) {
		line, end := lineAt(s, i)
		if line != "" {
			return line, end, true
		}
		i = end + 1
	}
	return "", len(s), false
}

// pad2 left-pads a captured number to two digits.
func pad2(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d", n)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
