// Package textkind decides which files are indexed as notes.
package textkind

import (
	"mime"
	"slices"
	"strings"
)

// Kind of supported file.
type Kind int

const (
	Text Kind = iota + 1
	Markdown
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Markdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// Sorted so lookups can binary search.
var (
	markdownExts = []string{
		"markdown", "md", "mdown", "mdtext", "mdtxt", "mdwn", "mdx", "mkd", "mkdn", "rmd",
	}
	textExts = []string{
		"adoc", "asc", "bat", "c", "cfg", "conf", "cpp", "cs", "css", "csv", "env", "go", "h",
		"hpp", "htm", "html", "ini", "java", "js", "json", "kt", "kts", "log", "lua", "nfo",
		"org", "php", "pl", "properties", "py", "rb", "rs", "rst", "sh", "sql", "tex",
		"text", "toml", "ts", "tsv", "txt", "xml", "yaml", "yml", "zsh",
	}
)

// Classifier classifies extensions with the built-in tables, a set of
// user supplied extensions and finally the mime registry.
type Classifier struct {
	extra map[string]Kind
}

// New returns a Classifier that also accepts the extra extensions (without
// the dot, case-insensitive). Extras are classified as Markdown when the
// extension contains "md", as Text otherwise.
func New(extra ...string) *Classifier {
	c := &Classifier{extra: make(map[string]Kind, len(extra))}
	for _, ext := range extra {
		ext = normalize(ext)
		if ext == "" {
			continue
		}
		kind := Text
		if strings.Contains(ext, "md") {
			kind = Markdown
		}
		c.extra[ext] = kind
	}
	return c
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Classify returns the kind of files with the given extension.
func (c *Classifier) Classify(ext string) (Kind, bool) {
	ext = normalize(ext)
	if ext == "" {
		return 0, false
	}
	if _, ok := slices.BinarySearch(markdownExts, ext); ok {
		return Markdown, true
	}
	if _, ok := slices.BinarySearch(textExts, ext); ok {
		return Text, true
	}
	if c != nil {
		if kind, ok := c.extra[ext]; ok {
			return kind, true
		}
	}
	if strings.HasPrefix(mime.TypeByExtension("."+ext), "text/") {
		return Text, true
	}
	return 0, false
}

// Supported reports whether the file name has a classifiable extension.
func (c *Classifier) Supported(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	_, ok := c.Classify(name[i+1:])
	return ok
}

// Classify uses the built-in tables only.
func Classify(ext string) (Kind, bool) {
	return (*Classifier)(nil).Classify(ext)
}
