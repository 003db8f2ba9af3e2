// Package scan finds schedule-bearing text containers in course pages.
package scan

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"kmdcal/internal/model"
	"kmdcal/internal/schedule"
)

// Candidate is one accepted container and its flattened text.
type Candidate struct {
	Tag  string
	Text string
}

// Page is a parsed course page.
type Page struct {
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{root: root}, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(doc string) (*Page, error) {
	return Parse(strings.NewReader(doc))
}

func skipped(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Iframe, atom.Svg, atom.Canvas:
		return true
	}
	return false
}

// Candidates walks the document in order and returns every P, SPAN or LI
// element outside a link whose children are only text and BR, and whose
// flattened text has a line starting with a date header.
func (p *Page) Candidates() []Candidate {
	var out []Candidate
	var walk func(n *html.Node, inLink bool)
	walk = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode {
			if skipped(n.DataAtom) {
				return
			}
			if n.DataAtom == atom.A {
				inLink = true
			}
			if !inLink && isTextContainer(n) {
				if text := flatten(n); text != "" && schedule.HasDateLine(text) {
					out = append(out, Candidate{Tag: n.Data, Text: text})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(p.root, false)
	return out
}

// Texts returns the flattened text of every candidate.
func (p *Page) Texts() []string {
	cands := p.Candidates()
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Text)
	}
	return out
}

func isTextContainer(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.Span, atom.Li:
	default:
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
		default:
			return false
		}
	}
	return true
}

// flatten joins the direct text children, mapping BR to a newline.
func flatten(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			b.WriteString(c.Data)
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			b.WriteByte('\n')
		}
	}
	return b.String()
}

var wsRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// textContent concatenates every descendant text node.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// find returns the first element in document order satisfying match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, match); f != nil {
			return f
		}
	}
	return nil
}

// findAll returns every element in document order satisfying match.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func isHeading(n *html.Node) bool {
	return n.DataAtom == atom.H1 || n.DataAtom == atom.H2 || n.DataAtom == atom.H3
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// closest returns n or its nearest ancestor with the given atom.
func closest(n *html.Node, a atom.Atom) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}
	return nil
}

// CourseName is the English heading span when present, else the first
// h1-h3 text, whitespace-collapsed.
func (p *Page) CourseName() string {
	for _, h := range findAll(p.root, isHeading) {
		if en := find(h, func(n *html.Node) bool { return hasClass(n, "en") }); en != nil {
			if name := collapse(textContent(en)); name != "" {
				return name
			}
		}
	}
	if h := find(p.root, isHeading); h != nil {
		return collapse(textContent(h))
	}
	return ""
}

// CourseLocation is the first non-blank line of the cell next to a
// 開講場所 / Class Room header.
func (p *Page) CourseLocation() string {
	for _, th := range findAll(p.root, func(n *html.Node) bool { return n.DataAtom == atom.Th }) {
		label := collapse(textContent(th))
		if !strings.Contains(label, "開講場所") && !strings.Contains(label, "Class Room") {
			continue
		}
		tr := closest(th, atom.Tr)
		if tr == nil {
			continue
		}
		td := find(tr, func(n *html.Node) bool { return n.DataAtom == atom.Td })
		if td == nil {
			continue
		}
		for _, line := range strings.Split(strings.ReplaceAll(textContent(td), "\r", ""), "\n") {
			if line = collapse(line); line != "" {
				return line
			}
		}
	}
	return ""
}

// CourseContext infers the course name and location once per page.
func (p *Page) CourseContext() model.CourseContext {
	return model.CourseContext{Name: p.CourseName(), Location: p.CourseLocation()}
}
