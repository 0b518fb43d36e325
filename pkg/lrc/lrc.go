// Package lrc reads and writes line-synchronised lyric files and finds the
// line that is active at a given playback position.
//
// A lyric line is any number of [mm:ss.hh] time tags followed by its text.
// Lines without a time tag are either ID tags such as [ti:Title] or comments,
// and produce no timed line.
package lrc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrMalformedInput is returned when the input has no recognisable LRC
// structure at all.
var ErrMalformedInput = errors.New("malformed lrc input")

// TimedLine is one (timestamp, text) pair.
type TimedLine struct {
	Time TimeTag
	Text string
}

// Document is a parsed lyric file. Lines keep the order in which the file
// declared them.
//
// Lines that carry no time tag (ID tags, comments, section headers) are kept
// verbatim so String reproduces them: header holds those before the first
// timed line, notes[i] those between timed lines i-1 and i, trailer those
// after the last one.
type Document struct {
	lines  []TimedLine
	tags   map[string]string
	sorted bool

	header  []string
	notes   [][]string
	trailer []string
}

// NewDocument builds a document from lines in the given order.
func NewDocument(lines []TimedLine) *Document {
	d := &Document{
		lines: append([]TimedLine(nil), lines...),
		tags:  make(map[string]string),
	}
	d.sorted = isSorted(d.lines)
	return d
}

// Parse decodes raw LRC text.
//
// Empty input, or input holding only ID tags, gives an empty document.
// Non-blank input without a single time or ID tag is rejected with
// ErrMalformedInput.
func Parse(raw string) (*Document, error) {
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: not valid utf-8", ErrMalformedInput)
	}
	raw = strings.TrimPrefix(raw, "\ufeff")

	doc := &Document{tags: make(map[string]string)}
	recognised := false
	var pending []string

	rawLines := strings.Split(raw, "\n")
	if n := len(rawLines); n > 0 && rawLines[n-1] == "" {
		rawLines = rawLines[:n-1]
	}
	for _, line := range rawLines {
		line = strings.TrimSuffix(line, "\r")
		rest := strings.TrimLeft(line, " \t")

		var times []TimeTag
		for strings.HasPrefix(rest, "[") {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				break
			}
			body := rest[1:end]
			if tt, err := ParseTimeTag(body); err == nil {
				times = append(times, tt)
				rest = rest[end+1:]
				continue
			}
			if len(times) == 0 {
				if key, value, ok := parseIDTag(body); ok {
					doc.tags[key] = value
					recognised = true
				}
			}
			break
		}

		if len(times) == 0 {
			pending = append(pending, line)
			continue
		}
		recognised = true
		if len(doc.lines) == 0 {
			doc.header, pending = pending, nil
		}
		for _, tt := range times {
			doc.lines = append(doc.lines, TimedLine{Time: tt, Text: rest})
			doc.notes = append(doc.notes, pending)
			pending = nil
		}
	}
	if len(doc.lines) == 0 {
		doc.header = pending
	} else {
		doc.trailer = pending
	}

	if !recognised && strings.TrimSpace(raw) != "" {
		return nil, fmt.Errorf("%w: no time or id tags found", ErrMalformedInput)
	}

	doc.sorted = isSorted(doc.lines)
	return doc, nil
}

func parseIDTag(body string) (string, string, bool) {
	key, value, ok := strings.Cut(body, ":")
	if !ok || key == "" {
		return "", "", false
	}
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", "", false
		}
	}
	return strings.ToLower(key), strings.TrimSpace(value), true
}

func isSorted(lines []TimedLine) bool {
	return sort.SliceIsSorted(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
}

// Len returns the number of timed lines.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.lines)
}

// Lines returns a copy of the timed lines in document order.
func (d *Document) Lines() []TimedLine {
	if d == nil {
		return nil
	}
	return append([]TimedLine(nil), d.lines...)
}

// IsSorted reports whether timestamps never decrease in document order.
func (d *Document) IsSorted() bool {
	return d == nil || d.sorted
}

// Tag returns the value of an ID tag such as "ti", "ar" or "al".
func (d *Document) Tag(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.tags[strings.ToLower(key)]
	return v, ok
}

// Resolve returns the line active at target: among the lines with the
// greatest timestamp not after target, the one declared last.
//
// Sorted documents are searched with a binary search. Unsorted documents
// fall back to a full scan with the same result, so a malformed file never
// yields a line from the wrong part of the song.
func (d *Document) Resolve(target TimeTag) (TimedLine, bool) {
	if d.Len() == 0 {
		return TimedLine{}, false
	}

	if d.sorted {
		i := sort.Search(len(d.lines), func(i int) bool { return d.lines[i].Time > target })
		if i == 0 {
			return TimedLine{}, false
		}
		return d.lines[i-1], true
	}

	best := -1
	for i, l := range d.lines {
		if l.Time > target {
			continue
		}
		if best < 0 || l.Time >= d.lines[best].Time {
			best = i
		}
	}
	if best < 0 {
		return TimedLine{}, false
	}
	return d.lines[best], true
}

// noteAt returns the untimed lines that precede timed line i.
func (d *Document) noteAt(i int) []string {
	if i < len(d.notes) {
		return d.notes[i]
	}
	return nil
}

// Sorted returns a copy ordered by timestamp. Lines sharing a timestamp keep
// their file order, and untimed lines between timed lines move with the line
// that follows them.
func (d *Document) Sorted() *Document {
	if d == nil {
		return nil
	}

	order := make([]int, len(d.lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return d.lines[order[a]].Time < d.lines[order[b]].Time })

	out := &Document{
		lines:   make([]TimedLine, 0, len(d.lines)),
		notes:   make([][]string, 0, len(d.lines)),
		tags:    make(map[string]string, len(d.tags)),
		sorted:  true,
		header:  append([]string(nil), d.header...),
		trailer: append([]string(nil), d.trailer...),
	}
	for _, i := range order {
		out.lines = append(out.lines, d.lines[i])
		out.notes = append(out.notes, append([]string(nil), d.noteAt(i)...))
	}
	for k, v := range d.tags {
		out.tags[k] = v
	}
	return out
}

// String encodes the document as LRC text. Untimed lines are written back
// verbatim in place; each timed line becomes one [mm:ss.hh] line, so a line
// carrying several time tags is written once per tag.
func (d *Document) String() string {
	if d == nil {
		return ""
	}
	var b strings.Builder

	writeVerbatim := func(lines []string) {
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}

	writeVerbatim(d.header)
	for i, l := range d.lines {
		writeVerbatim(d.noteAt(i))
		fmt.Fprintf(&b, "[%s]%s\n", l.Time, l.Text)
	}
	writeVerbatim(d.trailer)
	return b.String()
}
