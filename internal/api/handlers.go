package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/noteservice"
)

const toggleSuffix = "/toggle-completed"

// Events is notified about note changes made through the API.
type Events interface {
	PublishNoteEvent(kind, path string)
}

type noEvents struct{}

func (noEvents) PublishNoteEvent(string, string) {}

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	events Events
	logger *slog.Logger
}

// NewHandler creates a new Handler. events and logger may be nil.
func NewHandler(svc *noteservice.Service, events Events, logger *slog.Logger) *Handler {
	if events == nil {
		events = noEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, events: events, logger: logger}
}

// wildcardPath extracts the path after the route prefix.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return p, true
}

// ListFolders handles GET /api/folders.
func (h *Handler) ListFolders(w http.ResponseWriter, _ *http.Request) {
	folders := h.svc.Index().Folders()
	items := make([]FolderItem, len(folders))
	for i, f := range folders {
		items[i] = FolderItem{Path: f.RelativePath, Name: f.Name()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": items})
}

// Drawer handles GET /api/drawer.
//
//	@Param	parent	query	string	false	"Parent folder, root when empty"
//	@Param	sort	query	string	false	"Sort order"	Enums(az, za, most_recent, oldest)
func (h *Handler) Drawer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	order, err := models.ParseSortOrder(q.Get("sort"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	folders := h.svc.DrawerFolders(q.Get("parent"), order)
	items := make([]DrawerItem, len(folders))
	for i, f := range folders {
		items[i] = drawerItem(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": items})
}

// CreateFolder handles POST /api/folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := h.svc.CreateFolder(r.Context(), req.Path)
	if err != nil {
		h.writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, FolderItem{Path: f.RelativePath, Name: f.Name()})
}

// DeleteFolder handles DELETE /api/folders/*.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePath(w, r)
	if !ok {
		return
	}
	n, err := h.svc.DeleteFolder(r.Context(), p)
	if err != nil {
		h.writeError(w, "delete folder", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// ListNotes handles GET /api/notes.
//
//	@Param	folder		query	string	false	"Folder, root when empty"
//	@Param	recursive	query	bool	false	"Include sub folders"
//	@Param	sort		query	string	false	"Sort order"	Enums(az, za, most_recent, oldest)
//	@Param	completed	query	string	false	"Completion filter"	Enums(any, completed, open)
//	@Param	tag			query	string	false	"Filter by tag"
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	order, err := models.ParseSortOrder(q.Get("sort"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	completed, ok := index.ParseCompletedFilter(q.Get("completed"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown completed filter"))
		return
	}
	recursive := false
	if v := q.Get("recursive"); v != "" {
		if recursive, err = strconv.ParseBool(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("recursive must be a boolean"))
			return
		}
	}

	notes := h.svc.Grid(index.GridQuery{
		Folder:    q.Get("folder"),
		Recursive: recursive,
		Sort:      order,
		Completed: completed,
		Tag:       q.Get("tag"),
	})
	items := make([]GridItem, len(notes))
	for i, n := range notes {
		items[i] = gridItem(n)
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/*.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePath(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Note(p)
	if err != nil {
		h.writeError(w, "get note", err)
		return
	}
	d := noteservice.Detail(n)
	w.Header().Set("ETag", strconv.Quote(d.Checksum))
	writeJSON(w, http.StatusOK, d)
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.svc.CreateNote(r.Context(), req.Path, req.Content)
	if err != nil {
		h.writeError(w, "create note", err)
		return
	}
	h.events.PublishNoteEvent("created", n.RelativePath)
	writeJSON(w, http.StatusCreated, noteservice.Detail(n))
}

// UpdateNote handles PUT /api/notes/*. The If-Match header, when present,
// must carry the checksum of the current content.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req UpdateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	n, err := h.svc.UpdateNote(r.Context(), p, req.Path, *req.Content, ifMatch)
	if err != nil {
		h.writeError(w, "update note", err)
		return
	}
	if n.RelativePath != p {
		h.events.PublishNoteEvent("deleted", p)
		h.events.PublishNoteEvent("created", n.RelativePath)
	} else {
		h.events.PublishNoteEvent("updated", n.RelativePath)
	}
	writeJSON(w, http.StatusOK, noteservice.Detail(n))
}

// DeleteNote handles DELETE /api/notes/*.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePath(w, r)
	if !ok {
		return
	}
	n, err := h.svc.DeleteNote(r.Context(), p)
	if err != nil {
		h.writeError(w, "delete note", err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	h.events.PublishNoteEvent("deleted", p)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNotes handles DELETE /api/notes with a list of paths.
func (h *Handler) DeleteNotes(w http.ResponseWriter, r *http.Request) {
	var req DeleteNotesRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.svc.DeleteNotes(r.Context(), req.Paths)
	if err != nil {
		h.writeError(w, "delete notes", err)
		return
	}
	for _, p := range req.Paths {
		h.events.PublishNoteEvent("deleted", p)
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// NoteAction handles POST /api/notes/*/toggle-completed.
func (h *Handler) NoteAction(w http.ResponseWriter, r *http.Request) {
	p, ok := strings.CutSuffix(wildcardPath(r), toggleSuffix)
	if !ok || p == "" {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	n, err := h.svc.ToggleCompleted(r.Context(), p)
	if err != nil {
		h.writeError(w, "toggle completed", err)
		return
	}
	h.events.PublishNoteEvent("updated", n.RelativePath)
	writeJSON(w, http.StatusOK, noteservice.Detail(n))
}

// Search handles GET /api/search (fuzzy ranking over names and content).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results := h.svc.Search(q)
	hits := make([]SearchHit, len(results))
	for i, res := range results {
		hits[i] = searchHit(res)
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}

// FullTextSearch handles GET /api/fts (SQLite mirror).
func (h *Handler) FullTextSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.FullTextSearch(q, limit)
	if err != nil {
		h.writeError(w, "full text search", err)
		return
	}
	hits := make([]FullTextHit, len(results))
	for i, res := range results {
		hits[i] = FullTextHit{Path: res.Path, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, FullTextResponse{Results: hits})
}

// Reindex handles POST /api/reindex.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Reindex(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() == nil {
			writeJSON(w, http.StatusConflict, errorBody("superseded by a newer reindex"))
			return
		}
		h.writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse(snap))
}

// Sync handles POST /api/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sync(r.Context()); err != nil {
		h.logger.Warn("sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, indexResponse(h.svc.Index().Snapshot()))
}
