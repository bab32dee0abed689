// Package frontmatter reads and rewrites the metadata block at the head of a
// note. The block starts with a "---" line on the first line and ends at the
// next "---" line; every line in between is a "key: value" pair or an
// indented "- item" belonging to the previous key.
//
// All mutations are line based: lines that are not touched are kept verbatim
// and in order, and the body after the closing delimiter is never modified.
// A document that does not parse is treated as having no frontmatter.
package frontmatter

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	// Delimiter opens and closes the block.
	Delimiter = "---"
	// TimeLayout is the format of the created and updated fields, always UTC.
	TimeLayout = "2006-01-02 15:04:05Z"

	yes = "yes"
	no  = "no"

	titleMaxRunes = 50
)

// Well known field names.
const (
	FieldCompleted = "completed?"
	FieldTitle     = "title"
	FieldTags      = "tags"
	FieldCreated   = "created"
	FieldUpdated   = "updated"
)

// Engine performs the mutating operations with an injectable clock.
type Engine struct {
	Now func() time.Time
}

// Default uses the wall clock.
var Default = Engine{Now: time.Now}

func (e Engine) timestamp() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Format(TimeLayout)
}

// document is a body split into lines with the location of the block.
type document struct {
	lines []string
	end   int // index of the closing delimiter; 0 when there is no block
}

func split(body string) document {
	lines := strings.Split(body, "\n")
	d := document{lines: lines}
	if !isDelimiter(lines[0]) {
		return d
	}
	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			d.end = i
			break
		}
	}
	return d
}

func isDelimiter(line string) bool {
	return strings.TrimSpace(line) == Delimiter
}

func (d document) ok() bool { return d.end > 0 }

func (d document) fields() []string { return d.lines[1:d.end] }

func (d document) bodyLines() []string { return d.lines[d.end+1:] }

// join rebuilds the document around a new set of frontmatter lines, keeping
// the original delimiter lines.
func (d document) join(fields []string) string {
	out := make([]string, 0, len(fields)+len(d.lines)-d.end+1)
	out = append(out, d.lines[0])
	out = append(out, fields...)
	out = append(out, d.lines[d.end:]...)
	return strings.Join(out, "\n")
}

// splitField parses "key: value". ok is false for lines without a colon.
func splitField(line string) (key, value string, ok bool) {
	k, v, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), true
}

// keyMatches compares keys case-insensitively, ignoring a trailing "?".
func keyMatches(key, name string) bool {
	return strings.EqualFold(strings.TrimSuffix(key, "?"), strings.TrimSuffix(name, "?"))
}

func lineMatches(line, name string) bool {
	key, _, ok := splitField(line)
	return ok && keyMatches(key, name)
}

// Block returns the raw text between the delimiters.
func Block(body string) (string, bool) {
	d := split(body)
	if !d.ok() {
		return "", false
	}
	return strings.Join(d.fields(), "\n"), true
}

// Body returns the text after the closing delimiter, or body itself when
// there is no frontmatter.
func Body(body string) string {
	d := split(body)
	if !d.ok() {
		return body
	}
	return strings.Join(d.bodyLines(), "\n")
}

// Field returns the trimmed value of the first line whose key matches name.
func Field(body, name string) (string, bool) {
	d := split(body)
	if !d.ok() {
		return "", false
	}
	for _, line := range d.fields() {
		key, value, ok := splitField(line)
		if ok && keyMatches(key, name) {
			return value, true
		}
	}
	return "", false
}

// Completed returns the completed? flag; ok is false when the field is absent.
func Completed(body string) (completed, ok bool) {
	v, ok := Field(body, FieldCompleted)
	if !ok {
		return false, false
	}
	return strings.EqualFold(v, yes), true
}

// Tags returns the items listed under the tags field, in order.
func Tags(body string) []string {
	d := split(body)
	if !d.ok() {
		return []string{}
	}
	fields := d.fields()
	tags := []string{}
	for i, line := range fields {
		if !lineMatches(line, FieldTags) {
			continue
		}
		for _, item := range fields[i+1:] {
			value, ok := listItem(item)
			if !ok {
				break
			}
			if value != "" {
				tags = append(tags, value)
			}
		}
		break
	}
	return tags
}

// listItem parses an indented "- value" line.
func listItem(line string) (string, bool) {
	if line == "" || !unicode.IsSpace(rune(line[0])) {
		return "", false
	}
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if trimmed == "-" {
		return "", true
	}
	rest, ok := strings.CutPrefix(trimmed, "- ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// Properties decodes the block as YAML for read-only inspection. It returns
// nil when there is no block or the block is not valid YAML.
func Properties(body string) map[string]any {
	block, ok := Block(body)
	if !ok {
		return nil
	}
	var props map[string]any
	if err := yaml.Unmarshal([]byte(block), &props); err != nil {
		return nil
	}
	return props
}

// refreshUpdated rewrites any updated line with the given timestamp.
func refreshUpdated(fields []string, ts string) []string {
	for i, line := range fields {
		if lineMatches(line, FieldUpdated) {
			fields[i] = leadingSpace(line) + FieldUpdated + ": " + ts
		}
	}
	return fields
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace))]
}

// insertIndex places a new field right after the title, or at the end.
func insertIndex(fields []string) int {
	for i, line := range fields {
		if lineMatches(line, FieldTitle) {
			return i + 1
		}
	}
	return len(fields)
}

func insertAt(fields []string, i int, line string) []string {
	fields = append(fields, "")
	copy(fields[i+1:], fields[i:])
	fields[i] = line
	return fields
}

func (d document) copyFields() []string {
	return append([]string(nil), d.fields()...)
}

// ToggleField flips a yes/no field. A missing field is inserted as "yes".
// Documents without frontmatter are returned unchanged.
func (e Engine) ToggleField(body, name string) string {
	d := split(body)
	if !d.ok() {
		return body
	}
	fields := refreshUpdated(d.copyFields(), e.timestamp())
	found := false
	for i, line := range fields {
		_, value, ok := splitField(line)
		if !ok || !lineMatches(line, name) {
			continue
		}
		found = true
		next := yes
		if strings.EqualFold(value, yes) {
			next = no
		}
		fields[i] = leadingSpace(line) + name + ": " + next
	}
	if !found {
		fields = insertAt(fields, insertIndex(fields), name+": "+yes)
	}
	return d.join(fields)
}

// AddField makes sure a yes/no field exists, defaulting it to "no". A
// document without frontmatter gets a new block with a title guessed from
// its first line, created and updated timestamps and the field.
func (e Engine) AddField(body, name string) string {
	ts := e.timestamp()
	d := split(body)
	if !d.ok() {
		if isDelimiter(d.lines[0]) {
			// Unterminated block: leave the user's text alone.
			return body
		}
		header := []string{
			Delimiter,
			FieldTitle + ": " + guessTitle(d.lines[0]),
			FieldUpdated + ": " + ts,
			FieldCreated + ": " + ts,
			name + ": " + no,
			Delimiter,
		}
		return strings.Join(header, "\n") + "\n" + body
	}
	fields := refreshUpdated(d.copyFields(), ts)
	for _, line := range fields {
		if lineMatches(line, name) {
			return d.join(fields)
		}
	}
	fields = insertAt(fields, insertIndex(fields), name+": "+no)
	return d.join(fields)
}

// RemoveField deletes every line of the field and refreshes updated. The
// input is returned unchanged when there is nothing to remove.
func (e Engine) RemoveField(body, name string) string {
	d := split(body)
	if !d.ok() {
		return body
	}
	fields := make([]string, 0, d.end)
	removed := false
	for _, line := range d.fields() {
		if lineMatches(line, name) {
			removed = true
			continue
		}
		fields = append(fields, line)
	}
	if !removed {
		return body
	}
	return d.join(refreshUpdated(fields, e.timestamp()))
}

func guessTitle(line string) string {
	title := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
	if title == "" {
		return "Untitled"
	}
	if utf8.RuneCountInString(title) > titleMaxRunes {
		title = string([]rune(title)[:titleMaxRunes])
	}
	return title
}

// ToggleField flips a yes/no field using the wall clock.
func ToggleField(body, name string) string { return Default.ToggleField(body, name) }

// AddField ensures a yes/no field exists using the wall clock.
func AddField(body, name string) string { return Default.AddField(body, name) }

// RemoveField deletes a field using the wall clock.
func RemoveField(body, name string) string { return Default.RemoveField(body, name) }
