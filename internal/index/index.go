package index

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/notepath"
	"github.com/starford/gitnote/internal/storage"
)

// Index is the live, observable index. It is safe for concurrent use;
// writes are serialized.
type Index struct {
	logger *slog.Logger

	mu     sync.RWMutex
	snap   *Snapshot
	subs   map[chan *Snapshot]struct{}
	closed bool
	done   chan struct{}
}

// New returns an empty index.
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		logger: logger,
		snap:   newSnapshot(),
		subs:   make(map[chan *Snapshot]struct{}),
		done:   make(chan struct{}),
	}
}

// Snapshot returns the current snapshot.
func (ix *Index) Snapshot() *Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap
}

// Folders lists every folder sorted by path.
func (ix *Index) Folders() []models.Folder { return ix.Snapshot().Folders() }

// Notes lists every note sorted by path.
func (ix *Index) Notes() []models.Note { return ix.Snapshot().Notes() }

// Note looks up a note by path.
func (ix *Index) Note(path string) (models.Note, bool) { return ix.Snapshot().Note(path) }

// Folder looks up a folder by path.
func (ix *Index) Folder(path string) (models.Folder, bool) { return ix.Snapshot().Folder(path) }

// mutate applies fn to a copy of the current snapshot. When fn reports a
// change the copy becomes current and is published.
func (ix *Index) mutate(fn func(s *Snapshot) bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	next := ix.snap.clone()
	if !fn(next) {
		return
	}
	ix.swapLocked(next)
}

func (ix *Index) swapLocked(next *Snapshot) {
	next.Version = ix.snap.Version + 1
	ix.snap = next
	for ch := range ix.subs {
		offer(ch, next)
	}
}

// offer replaces whatever the subscriber has not consumed yet with s.
// Only the publisher sends, under ix.mu, so the final send cannot block.
func offer(ch chan *Snapshot, s *Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// UpsertFolder inserts or overwrites a folder, creating missing ancestors.
func (ix *Index) UpsertFolder(f models.Folder) {
	ix.mutate(func(s *Snapshot) bool {
		s.putFolder(f)
		return true
	})
}

// UpsertNote inserts or overwrites a note, creating missing ancestor folders.
func (ix *Index) UpsertNote(n models.Note) {
	ix.mutate(func(s *Snapshot) bool {
		s.putNote(n)
		return true
	})
}

// DeleteNote removes a note and reports the number of rows removed (0 or 1).
func (ix *Index) DeleteNote(path string) int {
	removed := 0
	ix.mutate(func(s *Snapshot) bool {
		if s.removeNote(path) {
			removed = 1
		}
		return removed > 0
	})
	return removed
}

// DeleteFolder removes a folder together with every folder and note under
// it. It returns the number of notes removed. The root cannot be deleted.
func (ix *Index) DeleteFolder(path string) int {
	if path == "" {
		return 0
	}
	removed := 0
	ix.mutate(func(s *Snapshot) bool {
		if _, ok := s.folders[path]; !ok {
			return false
		}
		for p := range s.folders {
			if notepath.IsWithin(p, path) {
				delete(s.folders, p)
			}
		}
		for p := range s.notes {
			if notepath.IsWithin(p, path) {
				s.removeNote(p)
				removed++
			}
		}
		return true
	})
	return removed
}

// Clear empties the index.
func (ix *Index) Clear() {
	ix.mutate(func(s *Snapshot) bool {
		*s = *newSnapshot()
		return true
	})
}

// Replace swaps in a snapshot produced by Rebuild.
func (ix *Index) Replace(s *Snapshot) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.swapLocked(s.clone())
}

// Reindex rebuilds the index from provider. On error, including
// cancellation, the current snapshot stays in place.
func (ix *Index) Reindex(ctx context.Context, provider storage.Provider, opts Options) (*Snapshot, error) {
	if opts.Logger == nil {
		opts.Logger = ix.logger
	}
	snap, err := Rebuild(ctx, provider, opts)
	if err != nil {
		return nil, err
	}
	ix.Replace(snap)
	return ix.Snapshot(), nil
}

// Subscribe returns a channel carrying the latest snapshot. The current
// snapshot is delivered first; a subscriber that falls behind only sees the
// most recent one. The channel is closed when ctx ends or the index closes.
// Each subscription holds a goroutine until then, so callers pass a context
// they cancel once they stop reading.
func (ix *Index) Subscribe(ctx context.Context) <-chan *Snapshot {
	ch := make(chan *Snapshot, 1)

	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- ix.snap
	ix.subs[ch] = struct{}{}
	ix.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			ix.unsubscribe(ch)
		case <-ix.done:
		}
	}()
	return ch
}

func (ix *Index) unsubscribe(ch chan *Snapshot) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.subs[ch]; ok {
		delete(ix.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of active subscriptions.
func (ix *Index) Subscribers() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.subs)
}

// Close closes every subscription. The index stays readable.
func (ix *Index) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return
	}
	ix.closed = true
	close(ix.done)
	for ch := range ix.subs {
		delete(ix.subs, ch)
		close(ch)
	}
}
