// Package noteservice owns every change to a notes repository: it writes
// through the storage provider, keeps the index and its SQLite mirror in
// step, and asks the version-control collaborator to commit.
package noteservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/starford/gitnote/internal/apperr"
	"github.com/starford/gitnote/internal/frontmatter"
	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/notepath"
	"github.com/starford/gitnote/internal/parser"
	"github.com/starford/gitnote/internal/ranker"
	"github.com/starford/gitnote/internal/reposync"
	"github.com/starford/gitnote/internal/storage"
	"github.com/starford/gitnote/internal/store"
)

// DefaultExtension is appended to note names given without one.
const DefaultExtension = ".md"

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path         string         `json:"path"`
	Name         string         `json:"name"`
	Content      string         `json:"content"`
	Checksum     string         `json:"checksum"`
	LastModified time.Time      `json:"last_modified"`
	Summary      parser.Summary `json:"summary"`
}

// Detail builds a NoteDetail from an indexed note.
func Detail(n models.Note) NoteDetail {
	return NoteDetail{
		Path:         n.RelativePath,
		Name:         n.Name(),
		Content:      n.Content,
		Checksum:     Checksum(n.Content),
		LastModified: n.LastModified,
		Summary:      parser.Summarize(n.Content),
	}
}

// Checksum identifies a content version for optimistic concurrency.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Service coordinates storage, index, mirror and repository operations.
type Service struct {
	files  storage.Provider
	index  *index.Index
	store  *store.Store
	repo   reposync.RepoSync
	logger *slog.Logger
	engine frontmatter.Engine

	author      string
	creds       reposync.Credentials
	indexOpts   index.Options
	ranker      ranker.Ranker
	searchLimit int

	// mu serializes every mutation, reindex included.
	mu sync.Mutex

	reindexMu     sync.Mutex
	reindexGen    uint64
	cancelReindex context.CancelFunc
}

// New creates a note service over files and ix.
func New(files storage.Provider, ix *index.Index, opts ...Option) *Service {
	s := &Service{
		files:  files,
		index:  ix,
		repo:   reposync.Nop{},
		logger: slog.Default(),
		engine: frontmatter.Default,
		ranker: ranker.Default,
	}
	for _, o := range opts {
		o(s)
	}
	if s.indexOpts.Logger == nil {
		s.indexOpts.Logger = s.logger
	}
	return s
}

// Index exposes the live index for read-only use.
func (s *Service) Index() *index.Index { return s.index }

// Open loads the index. When the mirror was built from the revision that
// is checked out it is restored as is; otherwise the tree is reindexed.
func (s *Service) Open(ctx context.Context) error {
	if s.store != nil {
		restored, err := s.restore(ctx)
		if err != nil {
			s.logger.Warn("noteservice: restore failed", slog.String("error", err.Error()))
		}
		if restored {
			return nil
		}
	}
	_, err := s.Reindex(ctx)
	return err
}

func (s *Service) restore(ctx context.Context) (bool, error) {
	rev, err := s.repo.CurrentRevision(ctx)
	if err != nil {
		return false, err
	}
	stored, err := s.store.Revision()
	if err != nil {
		return false, err
	}
	if rev == "" || rev != stored {
		return false, nil
	}
	folders, notes, err := s.store.Load()
	if err != nil {
		return false, err
	}
	s.index.Replace(index.FromEntries(folders, notes))
	s.logger.Info("noteservice: restored index",
		slog.String("revision", rev),
		slog.Int("notes", len(notes)),
	)
	return true, nil
}

// Reindex rebuilds the index from disk. A reindex already in flight is
// cancelled and returns context.Canceled.
func (s *Service) Reindex(ctx context.Context) (*index.Snapshot, error) {
	s.reindexMu.Lock()
	if s.cancelReindex != nil {
		s.cancelReindex()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.reindexGen++
	gen := s.reindexGen
	s.cancelReindex = cancel
	s.reindexMu.Unlock()

	defer func() {
		s.reindexMu.Lock()
		if s.reindexGen == gen {
			s.cancelReindex = nil
		}
		s.reindexMu.Unlock()
		cancel()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.reindexLocked(ctx)
}

func (s *Service) reindexLocked(ctx context.Context) (*index.Snapshot, error) {
	opts := s.indexOpts
	ts, err := s.repo.Timestamps(ctx)
	if err != nil {
		s.logger.Warn("noteservice: timestamps unavailable", slog.String("error", err.Error()))
	}
	opts.Timestamps = ts

	snap, err := s.index.Reindex(ctx, s.files, opts)
	if err != nil {
		return nil, fmt.Errorf("noteservice: reindex: %w", err)
	}
	if s.store != nil {
		rev, err := s.repo.CurrentRevision(ctx)
		if err != nil {
			s.logger.Warn("noteservice: revision unavailable", slog.String("error", err.Error()))
		}
		if err := s.store.ReplaceAll(snap.Folders(), snap.Notes(), rev); err != nil {
			s.logger.Error("noteservice: mirror failed", slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

// Sync pulls, commits local changes, pushes and reindexes when the
// checked out revision moved. Every step runs even if an earlier one
// failed; the failures are logged and returned joined.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.repo.CurrentRevision(ctx)
	if err != nil {
		return fmt.Errorf("noteservice: sync: revision: %w", err)
	}
	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			s.logger.Warn("noteservice: sync step failed", slog.String("step", name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	step("pull", func() error { return s.repo.Pull(ctx, s.creds) })
	step("commit", func() error { return s.repo.CommitAll(ctx, s.author) })
	step("push", func() error { return s.repo.Push(ctx, s.creds) })

	after, err := s.repo.CurrentRevision(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("revision: %w", err))
	} else if after != before {
		s.logger.Info("noteservice: revision changed", slog.String("from", before), slog.String("to", after))
		if _, err := s.reindexLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("noteservice: sync: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Service) commit(ctx context.Context) {
	if err := s.repo.CommitAll(ctx, s.author); err != nil {
		s.logger.Warn("noteservice: commit failed", slog.String("error", err.Error()))
	}
}

func (s *Service) mirror(op string, fn func(st *store.Store) error) {
	if s.store == nil {
		return
	}
	if err := fn(s.store); err != nil {
		s.logger.Error("noteservice: mirror failed", slog.String("op", op), slog.String("error", err.Error()))
	}
}

// notePath normalizes a user supplied note path, validates its name and
// applies the default extension.
func (s *Service) notePath(raw string) (string, error) {
	p := notepath.Normalize(raw)
	if err := notepath.Check(p); err != nil {
		return "", err
	}
	parent, _ := notepath.Parent(p)
	if err := notepath.ValidateDir(parent); err != nil {
		return "", err
	}
	name := notepath.TrimName(notepath.Leaf(p))
	if err := notepath.ValidateName(name); err != nil {
		return "", err
	}
	if path.Ext(name) == "" {
		name += DefaultExtension
	}
	if !s.indexOpts.Classifier.Supported(name) {
		return "", fmt.Errorf("%w: %q is not a text file name", apperr.ErrInvalidPath, name)
	}
	return notepath.Join(parent, name), nil
}

// write stores content at p and indexes the result.
func (s *Service) write(p, content string, create bool) (models.Note, error) {
	var err error
	if create {
		err = s.files.Create(p, []byte(content))
	} else {
		err = s.files.Write(p, []byte(content))
	}
	if err != nil {
		return models.Note{}, err
	}
	modified := time.Now()
	if e, err := s.files.Stat(p); err == nil {
		modified = e.ModTime
	}
	n, err := models.NewNote(p, content, modified)
	if err != nil {
		return models.Note{}, err
	}
	s.index.UpsertNote(n)
	s.mirror("upsert note", func(st *store.Store) error { return st.UpsertNote(n) })
	return n, nil
}

// CreateNote writes a new note. It fails with apperr.ErrAlreadyExists when
// the path is taken.
func (s *Service) CreateNote(ctx context.Context, rawPath, content string) (models.Note, error) {
	p, err := s.notePath(rawPath)
	if err != nil {
		return models.Note{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.write(p, content, true)
	if err != nil {
		return models.Note{}, fmt.Errorf("noteservice: create %s: %w", p, err)
	}
	s.commit(ctx)
	return n, nil
}

// UpdateNote replaces the content of previousPath and renames it to newPath
// when they differ. A non-empty ifMatch must equal the Checksum of the
// content currently on disk.
func (s *Service) UpdateNote(ctx context.Context, previousPath, newPath, content, ifMatch string) (models.Note, error) {
	prev := notepath.Normalize(previousPath)
	next := prev
	if newPath != "" {
		var err error
		if next, err = s.notePath(newPath); err != nil {
			return models.Note{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Note(prev); !ok {
		return models.Note{}, fmt.Errorf("noteservice: update %s: %w", prev, apperr.ErrNotFound)
	}
	current, err := s.files.Read(prev)
	if err != nil {
		return models.Note{}, fmt.Errorf("noteservice: update %s: %w", prev, err)
	}
	if ifMatch != "" && ifMatch != Checksum(string(current)) {
		return models.Note{}, fmt.Errorf("noteservice: update %s: %w", prev, apperr.ErrConflict)
	}

	if next == prev {
		n, err := s.write(prev, content, false)
		if err != nil {
			return models.Note{}, fmt.Errorf("noteservice: update %s: %w", prev, err)
		}
		s.commit(ctx)
		return n, nil
	}

	if err := s.files.Move(prev, next); err != nil {
		return models.Note{}, fmt.Errorf("noteservice: rename %s: %w", prev, err)
	}
	n, err := s.write(next, content, false)
	if err != nil {
		s.undoRename(prev, next, string(current))
		return models.Note{}, fmt.Errorf("noteservice: update %s: %w", next, err)
	}
	s.index.DeleteNote(prev)
	s.mirror("delete note", func(st *store.Store) error {
		_, err := st.DeleteNote(prev)
		return err
	})
	s.commit(ctx)
	return n, nil
}

// undoRename restores prev after a rename whose write failed. When the file
// cannot be moved back, the index follows it to next with its old content.
func (s *Service) undoRename(prev, next, content string) {
	err := s.files.Move(next, prev)
	if err == nil {
		return
	}
	s.logger.Error("noteservice: undo rename failed",
		slog.String("path", prev),
		slog.String("to", next),
		slog.String("error", err.Error()))

	modified := time.Now()
	if e, statErr := s.files.Stat(next); statErr == nil {
		modified = e.ModTime
	}
	n, nerr := models.NewNote(next, content, modified)
	if nerr != nil {
		return
	}
	s.index.DeleteNote(prev)
	s.index.UpsertNote(n)
	s.mirror("rename note", func(st *store.Store) error {
		if _, err := st.DeleteNote(prev); err != nil {
			return err
		}
		return st.UpsertNote(n)
	})
}

// DeleteNote removes a note and returns the number of index rows removed.
// A path that is not an indexed note is left alone and reports 0.
func (s *Service) DeleteNote(ctx context.Context, rawPath string) (int, error) {
	p := notepath.Normalize(rawPath)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.deleteNoteLocked(p)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.commit(ctx)
	}
	return n, nil
}

func (s *Service) deleteNoteLocked(p string) (int, error) {
	if _, ok := s.index.Note(p); !ok {
		return 0, nil
	}
	if err := s.files.Delete(p); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return 0, fmt.Errorf("noteservice: delete %s: %w", p, err)
	}
	n := s.index.DeleteNote(p)
	s.mirror("delete note", func(st *store.Store) error {
		_, err := st.DeleteNote(p)
		return err
	})
	return n, nil
}

// DeleteNotes removes several notes, continuing past failures.
func (s *Service) DeleteNotes(ctx context.Context, paths []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	var errs []error
	for _, raw := range paths {
		n, err := s.deleteNoteLocked(notepath.Normalize(raw))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	if total > 0 {
		s.commit(ctx)
	}
	return total, errors.Join(errs...)
}

// CreateFolder creates an empty folder.
func (s *Service) CreateFolder(_ context.Context, rawPath string) (models.Folder, error) {
	p := notepath.Normalize(rawPath)
	if p == "" {
		return models.Folder{}, fmt.Errorf("noteservice: create folder: %w: empty path", apperr.ErrInvalidPath)
	}
	parent, _ := notepath.Parent(p)
	name := notepath.TrimName(notepath.Leaf(p))
	if err := notepath.ValidateDir(notepath.Join(parent, name)); err != nil {
		return models.Folder{}, err
	}
	f, err := models.NewFolder(notepath.Join(parent, name))
	if err != nil {
		return models.Folder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Folder(f.RelativePath); ok {
		return models.Folder{}, fmt.Errorf("noteservice: create folder %s: %w", f.RelativePath, apperr.ErrAlreadyExists)
	}
	if err := s.files.MkdirAll(f.RelativePath); err != nil {
		return models.Folder{}, fmt.Errorf("noteservice: create folder %s: %w", f.RelativePath, err)
	}
	s.index.UpsertFolder(f)
	s.mirror("upsert folder", func(st *store.Store) error { return st.UpsertFolder(f) })
	return f, nil
}

// DeleteFolder removes a folder and its content and returns the number of
// notes removed. A path that is not an indexed folder is left alone.
func (s *Service) DeleteFolder(ctx context.Context, rawPath string) (int, error) {
	p := notepath.Normalize(rawPath)
	if p == "" {
		return 0, fmt.Errorf("noteservice: delete folder: %w: cannot delete the root", apperr.ErrInvalidPath)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Folder(p); !ok {
		return 0, nil
	}
	if err := s.files.RemoveAll(p); err != nil {
		return 0, fmt.Errorf("noteservice: delete folder %s: %w", p, err)
	}
	n := s.index.DeleteFolder(p)
	s.mirror("delete folder", func(st *store.Store) error {
		_, err := st.DeleteFolder(p)
		return err
	})
	s.commit(ctx)
	return n, nil
}

// ToggleCompleted flips the completed? field of a note, adding a
// frontmatter block first when the note has none.
func (s *Service) ToggleCompleted(ctx context.Context, rawPath string) (models.Note, error) {
	p := notepath.Normalize(rawPath)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index.Note(p)
	if !ok {
		return models.Note{}, fmt.Errorf("noteservice: toggle %s: %w", p, apperr.ErrNotFound)
	}
	content := n.Content
	if _, ok := frontmatter.Block(content); !ok {
		content = s.engine.AddField(content, frontmatter.FieldCompleted)
	}
	content = s.engine.ToggleField(content, frontmatter.FieldCompleted)

	updated, err := s.write(p, content, false)
	if err != nil {
		return models.Note{}, fmt.Errorf("noteservice: toggle %s: %w", p, err)
	}
	s.commit(ctx)
	return updated, nil
}

// Note returns an indexed note.
func (s *Service) Note(rawPath string) (models.Note, error) {
	p := notepath.Normalize(rawPath)
	n, ok := s.index.Note(p)
	if !ok {
		return models.Note{}, fmt.Errorf("noteservice: note %s: %w", p, apperr.ErrNotFound)
	}
	return n, nil
}

// Search ranks every note against query and highlights the names.
func (s *Service) Search(query string) []ranker.Result {
	results := s.ranker.Rank(query, s.index.Notes())
	if s.searchLimit > 0 && len(results) > s.searchLimit {
		results = results[:s.searchLimit]
	}
	ranker.Highlight(query, results)
	return results
}

// FullTextSearch queries the SQLite mirror.
func (s *Service) FullTextSearch(query string, limit int) ([]store.SearchResult, error) {
	if s.store == nil {
		return nil, fmt.Errorf("noteservice: full text search: %w: no database configured", apperr.ErrNotFound)
	}
	return s.store.Search(query, limit)
}

// Grid lists notes.
func (s *Service) Grid(q index.GridQuery) []models.GridNote {
	q.Folder = notepath.Normalize(q.Folder)
	return s.index.Grid(q)
}

// DrawerFolders lists the child folders of parent.
func (s *Service) DrawerFolders(parent string, order models.SortOrder) []index.DrawerFolder {
	return s.index.DrawerFolders(notepath.Normalize(parent), order)
}

// Close cancels a running reindex and ends every index subscription.
func (s *Service) Close() {
	s.reindexMu.Lock()
	if s.cancelReindex != nil {
		s.cancelReindex()
	}
	s.reindexMu.Unlock()
	s.index.Close()
}
