package noteservice

import (
	"log/slog"
	"time"

	"github.com/starford/gitnote/internal/frontmatter"
	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/ranker"
	"github.com/starford/gitnote/internal/reposync"
	"github.com/starford/gitnote/internal/store"
)

// Option configures a Service.
type Option func(*Service)

// WithStore mirrors the index into st.
func WithStore(st *store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithRepo sets the version-control collaborator. Defaults to reposync.Nop.
func WithRepo(r reposync.RepoSync, author string, creds reposync.Credentials) Option {
	return func(s *Service) {
		s.repo = r
		s.author = author
		s.creds = creds
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIndexOptions tunes full rebuilds.
func WithIndexOptions(o index.Options) Option {
	return func(s *Service) { s.indexOpts = o }
}

// WithRanker sets the fuzzy search threshold and result limit.
func WithRanker(r ranker.Ranker, limit int) Option {
	return func(s *Service) {
		s.ranker = r
		s.searchLimit = limit
	}
}

// WithClock overrides the clock used for frontmatter timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.engine = frontmatter.Engine{Now: now} }
}
