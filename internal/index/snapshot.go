// Package index holds the in-memory folder and note index of a repository.
//
// Readers always work on an immutable *Snapshot. Mutations build a new
// snapshot, swap it in and publish it to subscribers, so a listener never
// observes a partially applied change.
package index

import (
	"maps"
	"slices"
	"strings"

	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/notepath"
)

// Snapshot is an immutable view of the index.
type Snapshot struct {
	Version uint64

	folders map[string]models.Folder
	notes   map[string]models.Note
	names   map[string]int // leaf name -> number of notes carrying it
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		folders: make(map[string]models.Folder),
		notes:   make(map[string]models.Note),
		names:   make(map[string]int),
	}
}

func (s *Snapshot) clone() *Snapshot {
	return &Snapshot{
		Version: s.Version,
		folders: maps.Clone(s.folders),
		notes:   maps.Clone(s.notes),
		names:   maps.Clone(s.names),
	}
}

// putFolder inserts f and any missing ancestors.
func (s *Snapshot) putFolder(f models.Folder) {
	s.folders[f.RelativePath] = f
	s.ensureAncestors(f.RelativePath)
}

func (s *Snapshot) ensureAncestors(path string) {
	for {
		parent, ok := notepath.Parent(path)
		if !ok {
			return
		}
		if _, exists := s.folders[parent]; exists {
			return
		}
		s.folders[parent] = models.Folder{RelativePath: parent, ID: models.NextID()}
		path = parent
	}
}

func (s *Snapshot) putNote(n models.Note) {
	if old, ok := s.notes[n.RelativePath]; ok {
		s.dropName(old.Name())
	}
	s.notes[n.RelativePath] = n
	s.names[n.Name()]++
	s.ensureAncestors(n.RelativePath)
}

func (s *Snapshot) removeNote(path string) bool {
	n, ok := s.notes[path]
	if !ok {
		return false
	}
	delete(s.notes, path)
	s.dropName(n.Name())
	return true
}

func (s *Snapshot) dropName(name string) {
	if s.names[name] <= 1 {
		delete(s.names, name)
		return
	}
	s.names[name]--
}

// Folders returns every folder sorted by path.
func (s *Snapshot) Folders() []models.Folder {
	out := slices.Collect(maps.Values(s.folders))
	slices.SortFunc(out, func(a, b models.Folder) int {
		return strings.Compare(a.RelativePath, b.RelativePath)
	})
	return out
}

// Notes returns every note sorted by path.
func (s *Snapshot) Notes() []models.Note {
	out := slices.Collect(maps.Values(s.notes))
	slices.SortFunc(out, byPath)
	return out
}

func byPath(a, b models.Note) int {
	return strings.Compare(a.RelativePath, b.RelativePath)
}

// Note looks a note up by path.
func (s *Snapshot) Note(path string) (models.Note, bool) {
	n, ok := s.notes[path]
	return n, ok
}

// Folder looks a folder up by path.
func (s *Snapshot) Folder(path string) (models.Folder, bool) {
	f, ok := s.folders[path]
	return f, ok
}

// NoteCount returns the number of notes.
func (s *Snapshot) NoteCount() int { return len(s.notes) }

// FolderCount returns the number of folders, root included.
func (s *Snapshot) FolderCount() int { return len(s.folders) }

// IsUnique reports whether at most one note in the whole index has the
// given file name.
func (s *Snapshot) IsUnique(name string) bool {
	return s.names[name] <= 1
}

// FromEntries builds a snapshot out of previously mirrored folders and
// notes. Missing ancestor folders are created.
func FromEntries(folders []models.Folder, notes []models.Note) *Snapshot {
	s := newSnapshot()
	for _, f := range folders {
		s.putFolder(f)
	}
	for _, n := range notes {
		s.putNote(n)
	}
	return s
}
