package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitnote/internal/noteservice"
)

// RouterConfig collects what NewRouter needs besides the service.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is told about every note change made through the API.
	Events Events
	// SSE, if non-nil, is mounted at GET /events inside the auth group.
	SSE    http.Handler
	Logger *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *noteservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Events, cfg.Logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Tree.
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Delete("/folders/*", h.DeleteFolder)
	r.Get("/drawer", h.Drawer)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Delete("/notes", h.DeleteNotes)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)
	r.Post("/notes/*", h.NoteAction)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/fts", h.FullTextSearch)

	// Maintenance.
	r.Post("/reindex", h.Reindex)
	r.Post("/sync", h.Sync)

	if cfg.SSE != nil {
		r.Get("/events", cfg.SSE.ServeHTTP)
	}

	return r
}
