package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/noteservice"
	"github.com/starford/gitnote/internal/parser"
	"github.com/starford/gitnote/internal/ranker"
)

const maxPathLen = 1024

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md"`
	Content string `json:"content" example:"# Hello\nWorld"`
}

// Validate checks the request fields.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.Length(1, maxPathLen)),
	)
}

// UpdateNoteRequest is the request body for updating a note. A non-empty
// Path renames the note.
type UpdateNoteRequest struct {
	Path    string  `json:"path,omitempty" example:"notes/renamed.md"`
	Content *string `json:"content" example:"# Updated\nContent"`
}

// Validate checks the request fields.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Length(1, maxPathLen)),
		validation.Field(&r.Content, validation.NotNil),
	)
}

// DeleteNotesRequest is the request body for deleting several notes.
type DeleteNotesRequest struct {
	Paths []string `json:"paths"`
}

// Validate checks the request fields.
func (r DeleteNotesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Paths, validation.Required,
			validation.Each(validation.Required, validation.Length(1, maxPathLen))),
	)
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Path string `json:"path" example:"projects/2024"`
}

// Validate checks the request fields.
func (r CreateFolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.Length(1, maxPathLen)),
	)
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// GridItem is a single entry of a note listing.
type GridItem struct {
	Path         string         `json:"path"`
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	IsUnique     bool           `json:"is_unique"`
	Completed    *bool          `json:"completed,omitempty"`
	LastModified time.Time      `json:"last_modified"`
	Summary      parser.Summary `json:"summary"`
}

func gridItem(g models.GridNote) GridItem {
	return GridItem{
		Path:         g.RelativePath,
		Name:         g.Name(),
		DisplayName:  g.DisplayName(),
		IsUnique:     g.IsUnique,
		Completed:    g.Completed,
		LastModified: g.LastModified,
		Summary:      parser.Summarize(g.Content),
	}
}

// NoteListResponse wraps a note listing.
type NoteListResponse struct {
	Notes []GridItem `json:"notes"`
	Total int        `json:"total" example:"42"`
}

// FolderItem is a folder of the tree listing.
type FolderItem struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// DrawerItem is a child folder with its recursive note count.
type DrawerItem struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	NoteCount    int       `json:"note_count"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

func drawerItem(d index.DrawerFolder) DrawerItem {
	return DrawerItem{
		Path:         d.RelativePath,
		Name:         d.Name(),
		NoteCount:    d.NoteCount,
		LastModified: d.LastModified,
	}
}

// SearchHit is a single fuzzy search result.
type SearchHit struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	ByName     bool   `json:"by_name"`
	Highlights []int  `json:"highlights,omitempty"`
}

func searchHit(r ranker.Result) SearchHit {
	return SearchHit{
		Path:       r.Note.RelativePath,
		Name:       r.Note.Name(),
		Score:      r.Score,
		ByName:     r.ByName,
		Highlights: r.Highlights,
	}
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// FullTextHit is a single full-text search result.
type FullTextHit struct {
	Path    string `json:"path" example:"notes/hello.md"`
	Snippet string `json:"snippet" example:"...matched text..."`
}

// FullTextResponse wraps full-text search results.
type FullTextResponse struct {
	Results []FullTextHit `json:"results"`
}

// IndexResponse describes the index after a reindex or sync.
type IndexResponse struct {
	Version uint64 `json:"version"`
	Notes   int    `json:"notes"`
	Folders int    `json:"folders"`
}

func indexResponse(s *index.Snapshot) IndexResponse {
	return IndexResponse{Version: s.Version, Notes: s.NoteCount(), Folders: s.FolderCount()}
}

// DeleteResponse reports how many notes a delete removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}
