package index

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/starford/gitnote/internal/frontmatter"
	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/notepath"
)

// CompletedFilter narrows a grid to notes by their completed? flag.
type CompletedFilter int

const (
	AnyCompletion CompletedFilter = iota
	OnlyCompleted
	OnlyOpen
)

// ParseCompletedFilter maps "", "any", "completed" and "open".
func ParseCompletedFilter(s string) (CompletedFilter, bool) {
	switch strings.ToLower(s) {
	case "", "any":
		return AnyCompletion, true
	case "completed", "done":
		return OnlyCompleted, true
	case "open", "todo":
		return OnlyOpen, true
	}
	return AnyCompletion, false
}

// GridQuery selects and orders the notes of a listing.
type GridQuery struct {
	Folder    string
	Recursive bool
	Sort      models.SortOrder
	Completed CompletedFilter
	Tag       string
}

// Grid projects the current snapshot.
func (ix *Index) Grid(q GridQuery) []models.GridNote { return ix.Snapshot().Grid(q) }

// Grid lists the notes of q.Folder (and its descendants when Recursive).
func (s *Snapshot) Grid(q GridQuery) []models.GridNote {
	out := make([]models.GridNote, 0)
	for _, n := range s.notes {
		if q.Recursive {
			if !notepath.IsWithin(n.RelativePath, q.Folder) {
				continue
			}
		} else if n.ParentPath() != q.Folder {
			continue
		}
		g := models.GridNote{Note: n, IsUnique: s.IsUnique(n.Name())}
		if done, ok := frontmatter.Completed(n.Content); ok {
			g.Completed = &done
		}
		if !q.matches(g) {
			continue
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b models.GridNote) int {
		return compareNotes(q.Sort, a.Note, b.Note)
	})
	return out
}

func (q GridQuery) matches(g models.GridNote) bool {
	switch q.Completed {
	case OnlyCompleted:
		if g.Completed == nil || !*g.Completed {
			return false
		}
	case OnlyOpen:
		if g.Completed != nil && *g.Completed {
			return false
		}
	}
	if q.Tag != "" {
		return slices.ContainsFunc(frontmatter.Tags(g.Content), func(t string) bool {
			return strings.EqualFold(t, q.Tag)
		})
	}
	return true
}

func compareNotes(order models.SortOrder, a, b models.Note) int {
	switch order {
	case models.SortZA:
		return -byPath(a, b)
	case models.SortMostRecent:
		return cmp.Or(b.LastModified.Compare(a.LastModified), byPath(a, b))
	case models.SortOldest:
		return cmp.Or(a.LastModified.Compare(b.LastModified), byPath(a, b))
	default:
		return byPath(a, b)
	}
}

// DrawerFolder is a child folder with the number of notes it holds,
// descendants included.
type DrawerFolder struct {
	models.Folder
	NoteCount    int       `json:"note_count"`
	LastModified time.Time `json:"last_modified"`
}

// DrawerFolders lists the direct child folders of parent.
func (ix *Index) DrawerFolders(parent string, order models.SortOrder) []DrawerFolder {
	return ix.Snapshot().DrawerFolders(parent, order)
}

// DrawerFolders lists the direct child folders of parent. Time based orders
// use the most recent note modification inside each folder.
func (s *Snapshot) DrawerFolders(parent string, order models.SortOrder) []DrawerFolder {
	out := make([]DrawerFolder, 0)
	if _, ok := s.folders[parent]; !ok {
		return out
	}
	pos := make(map[string]int)
	for p, f := range s.folders {
		if fp, ok := notepath.Parent(p); ok && fp == parent {
			pos[p] = len(out)
			out = append(out, DrawerFolder{Folder: f})
		}
	}
	for _, n := range s.notes {
		child, ok := childOf(parent, n.RelativePath)
		if !ok {
			continue
		}
		i, ok := pos[child]
		if !ok {
			continue
		}
		out[i].NoteCount++
		if n.LastModified.After(out[i].LastModified) {
			out[i].LastModified = n.LastModified
		}
	}
	slices.SortFunc(out, func(a, b DrawerFolder) int {
		byName := strings.Compare(a.RelativePath, b.RelativePath)
		switch order {
		case models.SortZA:
			return -byName
		case models.SortMostRecent:
			return cmp.Or(b.LastModified.Compare(a.LastModified), byName)
		case models.SortOldest:
			return cmp.Or(a.LastModified.Compare(b.LastModified), byName)
		default:
			return byName
		}
	})
	return out
}

// childOf returns the direct child folder of parent that contains path.
func childOf(parent, path string) (string, bool) {
	rest := path
	if parent != "" {
		var ok bool
		rest, ok = strings.CutPrefix(path, parent+notepath.Separator)
		if !ok {
			return "", false
		}
	}
	first, _, found := strings.Cut(rest, notepath.Separator)
	if !found {
		return "", false
	}
	return notepath.Join(parent, first), true
}
