package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/notepath"
	"github.com/starford/gitnote/internal/storage"
	"github.com/starford/gitnote/internal/textkind"
)

// DefaultMaxFileSize is the largest file indexed as a note.
const DefaultMaxFileSize int64 = 2 << 20

// Options tune a rebuild.
type Options struct {
	// MaxFileSize skips larger files. Zero selects DefaultMaxFileSize.
	MaxFileSize int64
	// Classifier decides which files are notes. Nil uses the built-in tables.
	Classifier *textkind.Classifier
	// Timestamps overrides file modification times by note path.
	Timestamps map[string]time.Time
	// Workers bounds concurrent file reads. Zero selects GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Rebuild walks the provider tree and returns a complete new snapshot.
// Unreadable entries are logged and skipped. Only a failure to list the
// root, or ctx ending, fails the rebuild; nothing partial is returned.
func Rebuild(ctx context.Context, provider storage.Provider, opts Options) (*Snapshot, error) {
	opts = opts.withDefaults()
	start := time.Now()

	entries, err := provider.List("")
	if err != nil {
		return nil, fmt.Errorf("index: rebuild: list root: %w", err)
	}

	r := &rebuilder{provider: provider, opts: opts, snap: newSnapshot()}
	r.snap.putFolder(models.Folder{RelativePath: "", ID: models.NextID()})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	walkErr := r.walk(gctx, g, "", entries)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts.Logger.Info("rebuild: done",
		slog.Int("folders", r.snap.FolderCount()),
		slog.Int("notes", r.snap.NoteCount()),
		slog.Duration("took", time.Since(start)),
	)
	return r.snap, nil
}

type rebuilder struct {
	provider storage.Provider
	opts     Options

	mu   sync.Mutex
	snap *Snapshot
}

// walk descends depth-first. Directories are listed on the calling
// goroutine; file reads are handed to g.
func (r *rebuilder) walk(ctx context.Context, g *errgroup.Group, dir string, entries []storage.Entry) error {
	log := r.opts.Logger
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := notepath.Join(dir, e.Name)

		if e.Dir {
			if e.Hidden() {
				continue
			}
			folder, err := models.NewFolder(path)
			if err != nil {
				log.Warn("rebuild: invalid folder", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			children, err := r.provider.List(path)
			if err != nil {
				log.Warn("rebuild: list failed", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			r.mu.Lock()
			r.snap.putFolder(folder)
			r.mu.Unlock()
			if err := r.walk(ctx, g, path, children); err != nil {
				return err
			}
			continue
		}

		// Links to directories land here too (Dir is false for links) and are
		// dropped unless their name looks like a note.
		if !r.opts.Classifier.Supported(e.Name) {
			continue
		}
		if e.Size > r.opts.MaxFileSize {
			log.Debug("rebuild: file too large",
				slog.String("path", path),
				slog.Int64("size", e.Size),
				slog.Int64("limit", r.opts.MaxFileSize),
			)
			continue
		}
		modified := e.ModTime
		if ts, ok := r.opts.Timestamps[path]; ok {
			modified = ts
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.readNote(path, modified)
			return nil
		})
	}
	return nil
}

func (r *rebuilder) readNote(path string, modified time.Time) {
	log := r.opts.Logger
	data, err := r.provider.Read(path)
	if err != nil {
		log.Warn("rebuild: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	content := string(data)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, string(utf8.RuneError))
	}
	note, err := models.NewNote(path, content, modified)
	if err != nil {
		log.Warn("rebuild: invalid note", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	r.mu.Lock()
	r.snap.putNote(note)
	r.mu.Unlock()
}
