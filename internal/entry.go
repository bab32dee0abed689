// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/gitnote/internal/api"
	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/mcpserver"
	"github.com/starford/gitnote/internal/noteservice"
	"github.com/starford/gitnote/internal/ranker"
	"github.com/starford/gitnote/internal/reposync"
	"github.com/starford/gitnote/internal/sse"
	"github.com/starford/gitnote/internal/storage"
	"github.com/starford/gitnote/internal/store"
	"github.com/starford/gitnote/internal/textkind"
	"github.com/starford/gitnote/internal/watch"
)

// services are the collaborators shared by every command.
type services struct {
	logger *slog.Logger
	store  *store.Store
	svc    *noteservice.Service
}

func (s *services) close() {
	s.svc.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("store close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// open builds the logger, storage, mirror, index and note service, and
// loads the index.
func (a *application) open(ctx context.Context) (*services, error) {
	cfg := a.config

	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("repo_path", cfg.Repo.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Repo.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Repo.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	var st *store.Store
	if cfg.SQLite.Path != "" {
		if st, err = store.Open(cfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}

	repo := a.repo
	if repo == nil {
		repo = reposync.Nop{}
	}

	opts := []noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithRepo(repo, cfg.Repo.Author, a.creds),
		noteservice.WithRanker(ranker.Ranker{MinScore: cfg.Search.MinScore}, cfg.Search.Limit),
		noteservice.WithIndexOptions(index.Options{
			MaxFileSize: cfg.Index.MaxFileSize,
			Classifier:  textkind.New(cfg.Index.ExtraExtensions...),
			Workers:     cfg.Index.Workers,
			Logger:      logger,
		}),
	}
	if st != nil {
		opts = append(opts, noteservice.WithStore(st))
	}
	svc := noteservice.New(files, index.New(logger), opts...)
	s := &services{logger: logger, store: st, svc: svc}

	if err := svc.Open(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("open index: %w", err)
	}
	return s, nil
}

// watchTree reindexes whenever the working tree changes. It blocks until
// ctx ends.
func watchTree(ctx context.Context, s *services, cfg WatchConfig, root string) error {
	return watch.Watch(ctx, root, cfg.Debounce, s.logger, func() {
		if _, err := s.svc.Reindex(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("watcher: reindex failed", slog.String("error", err.Error()))
		}
	})
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	logger := s.logger

	broker := sse.NewBroker(cfg.App.EventsInterval, logger)
	defer broker.Close()

	apiRouter := api.NewRouter(s.svc, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		SSE:         broker,
		Logger:      logger,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		snap := s.svc.Index().Snapshot()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%d,"notes":%d}`, snap.Version, snap.NoteCount())
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		broker.Forward(gCtx, s.svc.Index())
		return nil
	})

	if cfg.Watch.Enabled {
		g.Go(func() error {
			if err := watchTree(gCtx, s, cfg.Watch, cfg.Repo.Path); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// cancels gCtx so Forward and the watcher return
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	s, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if app.config.Watch.Enabled {
		go func() {
			if err := watchTree(ctx, s, app.config.Watch, app.config.Repo.Path); err != nil {
				s.logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	version := cmp.Or(app.version, "dev")
	s.logger.Info("MCP server starting", slog.String("version", version))
	return mcpserver.New(s.svc, version).ServeStdio()
}

// Reindex rebuilds the index and its mirror once and returns the result.
func Reindex(ctx context.Context, opts ...Option) (*index.Snapshot, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	s, err := app.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return s.svc.Reindex(ctx)
}

// Search ranks the notes of the configured repository against query.
func Search(ctx context.Context, query string, opts ...Option) ([]ranker.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	s, err := app.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return s.svc.Search(query), nil
}
