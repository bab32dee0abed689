// Package markdown recognises list lines and continues them while a note is
// being edited.
package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the marker of a list item.
type Kind int

const (
	Dash Kind = iota
	Asterisk
	Number
)

var (
	listRe    = regexp.MustCompile(`^(\s*)(?:(-)|(\*)|(\d+)\.)\s(?:\[([ xX])]\s)?(.+)?$`)
	paddingRe = regexp.MustCompile(`^\s+`)
)

// ListItem is a parsed list line.
type ListItem struct {
	Kind    Kind
	Number  int // only for Number items
	Task    bool
	Checked bool
	Padding string
	Title   string
}

// Analyze parses line as a list item.
func Analyze(line string) (ListItem, bool) {
	m := listRe.FindStringSubmatchIndex(line)
	if m == nil {
		return ListItem{}, false
	}
	group := func(i int) (string, bool) {
		if m[2*i] < 0 {
			return "", false
		}
		return line[m[2*i]:m[2*i+1]], true
	}

	item := ListItem{}
	item.Padding, _ = group(1)
	switch {
	case m[4] >= 0:
		item.Kind = Dash
	case m[6] >= 0:
		item.Kind = Asterisk
	default:
		digits, _ := group(4)
		n, err := strconv.Atoi(digits)
		if err != nil {
			return ListItem{}, false
		}
		item.Kind = Number
		item.Number = n
	}
	if mark, ok := group(5); ok {
		item.Task = true
		item.Checked = mark != " "
	}
	item.Title, _ = group(6)
	return item, true
}

// ShouldRemove reports whether the item is only a marker.
func (li ListItem) ShouldRemove() bool {
	return strings.TrimSpace(li.Title) == ""
}

func (li ListItem) marker(number int, checked bool) string {
	var b strings.Builder
	switch li.Kind {
	case Dash:
		b.WriteString("- ")
	case Asterisk:
		b.WriteString("* ")
	case Number:
		b.WriteString(strconv.Itoa(number))
		b.WriteString(". ")
	}
	if li.Task {
		if checked {
			b.WriteString("[x] ")
		} else {
			b.WriteString("[ ] ")
		}
	}
	return b.String()
}

// Next returns the marker that starts the following item. Numbers are
// incremented and tasks start unchecked.
func (li ListItem) Next() string {
	return li.marker(li.Number+1, false)
}

// Line renders the item back into a single line.
func (li ListItem) Line() string {
	return li.Padding + li.marker(li.Number, li.Checked) + li.Title
}

// Padding returns the leading whitespace of line.
func Padding(line string) string {
	return paddingRe.FindString(line)
}

// ContinueOnNewline adjusts text after a newline was typed just before
// cursor (a byte offset). A list line holding only its marker is removed, a
// list line is followed by the next marker, and an indented line passes its
// indentation on. The returned cursor points after any inserted text.
func ContinueOnNewline(text string, cursor int) (string, int) {
	if cursor <= 0 || cursor > len(text) || text[cursor-1] != '\n' {
		return text, cursor
	}
	start := strings.LastIndexByte(text[:cursor-1], '\n') + 1
	before := text[start : cursor-1]

	end := strings.IndexByte(text[cursor:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += cursor
	}
	current := text[cursor:end]

	item, ok := Analyze(before)
	if ok && item.ShouldRemove() && strings.TrimSpace(current) == "" {
		return text[:start] + text[cursor:], start
	}
	insert := ""
	if ok {
		insert = item.Padding + item.Next()
	} else {
		insert = Padding(before)
	}
	if insert == "" {
		return text, cursor
	}
	return text[:cursor] + insert + text[cursor:], cursor + len(insert)
}

// TaskStats counts the checked and total task items in content.
func TaskStats(content string) (done, total int) {
	for line := range strings.SplitSeq(content, "\n") {
		item, ok := Analyze(line)
		if !ok || !item.Task {
			continue
		}
		total++
		if item.Checked {
			done++
		}
	}
	return done, total
}
