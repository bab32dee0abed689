// Package parser derives display metadata from a note: title, tags,
// completion state, task progress and a short preview.
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/gitnote/internal/frontmatter"
	"github.com/starford/gitnote/internal/markdown"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}][\p{L}0-9_/-]*)`)

// PreviewRunes bounds Summary.Preview.
const PreviewRunes = 160

// Summary is what listings show about a note.
type Summary struct {
	Title      string         `json:"title"`
	Tags       []string       `json:"tags"`
	Completed  *bool          `json:"completed,omitempty"`
	TasksDone  int            `json:"tasks_done"`
	TasksTotal int            `json:"tasks_total"`
	Preview    string         `json:"preview"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Summarize never fails; text that does not parse simply yields less.
func Summarize(content string) Summary {
	body := frontmatter.Body(content)
	s := Summary{
		Title:      deriveTitle(content, body),
		Tags:       extractTags(content, body),
		Preview:    preview(body),
		Properties: frontmatter.Properties(content),
	}
	if done, ok := frontmatter.Completed(content); ok {
		s.Completed = &done
	}
	s.TasksDone, s.TasksTotal = markdown.TaskStats(body)
	return s
}

// extractTags merges frontmatter tags with inline #tags of the body,
// frontmatter first, without duplicates.
func extractTags(content, body string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	add := func(t string) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range frontmatter.Tags(content) {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise an empty string.
func deriveTitle(content, body string) string {
	if t, ok := frontmatter.Field(content, frontmatter.FieldTitle); ok && t != "" {
		return t
	}
	for line := range strings.SplitSeq(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// preview joins the first non-heading lines of body into one line.
func preview(body string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
		if utf8.RuneCountInString(b.String()) >= PreviewRunes {
			break
		}
	}
	out := b.String()
	if utf8.RuneCountInString(out) > PreviewRunes {
		out = string([]rune(out)[:PreviewRunes]) + "…"
	}
	return out
}
