// Package models defines the domain types for gitnote.
package models

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/gitnote/internal/apperr"
	"github.com/starford/gitnote/internal/notepath"
)

var lastID atomic.Int64

// NextID returns a process-unique identifier. IDs only keep listings stable;
// entities are always looked up by path.
func NextID() int64 {
	return lastID.Add(1)
}

// Folder is a directory of the repository working tree.
type Folder struct {
	RelativePath string `json:"relative_path"`
	ID           int64  `json:"id"`
}

// NewFolder normalizes path and assigns a fresh ID. The root folder is "".
func NewFolder(path string) (Folder, error) {
	path = notepath.Normalize(path)
	if err := notepath.Check(path); err != nil {
		return Folder{}, err
	}
	return Folder{RelativePath: path, ID: NextID()}, nil
}

// Name returns the last path element; empty for the root folder.
func (f Folder) Name() string {
	return notepath.Leaf(f.RelativePath)
}

// ParentPath returns the parent folder path; ok is false for the root.
func (f Folder) ParentPath() (string, bool) {
	return notepath.Parent(f.RelativePath)
}

// Note is a text file of the repository working tree.
type Note struct {
	RelativePath string    `json:"relative_path"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
	ID           int64     `json:"id"`
}

// NewNote normalizes path, validates the note invariants and assigns a fresh ID.
// A zero modified time is replaced by the current time.
func NewNote(path, content string, modified time.Time) (Note, error) {
	path = notepath.Normalize(path)
	if path == "" {
		return Note{}, fmt.Errorf("%w: note path is empty", apperr.ErrInvalidPath)
	}
	if modified.IsZero() {
		modified = time.Now()
	}
	n := Note{RelativePath: path, Content: content, LastModified: modified, ID: NextID()}
	for _, part := range []string{n.RelativePath, n.ParentPath(), n.Name(), n.NameWithoutExtension()} {
		if err := notepath.Check(part); err != nil {
			return Note{}, err
		}
	}
	return n, nil
}

// Name returns the file name including its extension.
func (n Note) Name() string {
	return notepath.Leaf(n.RelativePath)
}

// ParentPath returns the folder containing the note ("" for the root).
func (n Note) ParentPath() string {
	parent, _ := notepath.Parent(n.RelativePath)
	return parent
}

// Extension classifies the file extension of the note name.
func (n Note) Extension() FileExtension {
	name := n.Name()
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return MatchExtension("")
	}
	return MatchExtension(name[i+1:])
}

// NameWithoutExtension returns the file name without its final extension.
func (n Note) NameWithoutExtension() string {
	name := n.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// ExtKind tags a FileExtension.
type ExtKind int

const (
	ExtOther ExtKind = iota
	ExtMd
	ExtTxt
)

// FileExtension is a known extension or Other carrying the raw text.
type FileExtension struct {
	Kind ExtKind
	Text string
}

var knownExtensions = []FileExtension{
	{Kind: ExtMd, Text: "md"},
	{Kind: ExtTxt, Text: "txt"},
}

// MatchExtension compares ext case-insensitively against the known set.
func MatchExtension(ext string) FileExtension {
	for _, known := range knownExtensions {
		if strings.EqualFold(known.Text, ext) {
			return known
		}
	}
	return FileExtension{Kind: ExtOther, Text: ext}
}

func (e FileExtension) String() string {
	return e.Text
}

// SortOrder selects the ordering of a grid listing.
type SortOrder int

const (
	SortAZ SortOrder = iota
	SortZA
	SortMostRecent
	SortOldest
)

var sortOrderNames = map[SortOrder]string{
	SortAZ:         "az",
	SortZA:         "za",
	SortMostRecent: "most_recent",
	SortOldest:     "oldest",
}

func (s SortOrder) String() string {
	if name, ok := sortOrderNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SortOrder(%d)", int(s))
}

// ParseSortOrder maps a name to a SortOrder. Empty selects SortAZ.
func ParseSortOrder(name string) (SortOrder, error) {
	if name == "" {
		return SortAZ, nil
	}
	for order, n := range sortOrderNames {
		if strings.EqualFold(n, name) {
			return order, nil
		}
	}
	return SortAZ, fmt.Errorf("unknown sort order %q", name)
}

// GridNote is a read-only listing projection of a Note.
type GridNote struct {
	Note
	// IsUnique is false when another note anywhere in the index shares the file name.
	IsUnique  bool  `json:"is_unique"`
	Selected  bool  `json:"selected"`
	Completed *bool `json:"completed,omitempty"`
}

// DisplayName is the bare name for unique notes and the full path otherwise.
func (g GridNote) DisplayName() string {
	if g.IsUnique {
		return g.NameWithoutExtension()
	}
	return g.RelativePath
}
