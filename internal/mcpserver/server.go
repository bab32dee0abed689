// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes gitnote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gitnote/internal/frontmatter"
	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/models"
	"github.com/starford/gitnote/internal/noteservice"
)

// NoteFormatURI is the resource URI of NoteFormatContract.
const NoteFormatURI = "gitnote://note-format"

const searchLimit = 20

// Server wraps the MCP server with gitnote tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all gitnote tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"gitnote",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by name and content. The default fuzzy mode ranks "+
			"notes by name first; fulltext mode queries the SQLite mirror and returns snippets."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("mode", mcp.Description("Search mode"), mcp.Enum("fuzzy", "fulltext")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note at the specified path. Content should follow "+
			"the note format contract; read it first via the get_note_contract tool or the "+
			NoteFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new note; .md is added when no extension is given")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the notes of a folder."),
		mcp.WithString("folder", mcp.Description("Folder to list, empty for the repository root")),
		mcp.WithBoolean("recursive", mcp.Description("Include notes of sub folders")),
		mcp.WithString("sort", mcp.Description("Sort order"), mcp.Enum("az", "za", "most_recent", "oldest")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List every folder of the repository. The root is shown as /."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("toggle_completed",
		mcp.WithDescription("Flip the completed? frontmatter field of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.toggleCompleted)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the gitnote note format contract. "+
			"Call this before creating or updating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format Contract",
			mcp.WithResourceDescription("Note layout gitnote reads and writes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type searchHit struct {
	Path    string `json:"path"`
	Score   int    `json:"score,omitempty"`
	ByName  bool   `json:"by_name,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hits := make([]searchHit, 0)
	switch mode := req.GetString("mode", "fuzzy"); mode {
	case "fuzzy":
		for _, r := range s.svc.Search(query) {
			hits = append(hits, searchHit{Path: r.Note.RelativePath, Score: r.Score, ByName: r.ByName})
			if len(hits) == searchLimit {
				break
			}
		}
	case "fulltext":
		results, err := s.svc.FullTextSearch(query, searchLimit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		for _, r := range results {
			hits = append(hits, searchHit{Path: r.Path, Snippet: r.Snippet})
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", mode)), nil
	}

	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.Note(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(n.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.CreateNote(ctx, path, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.RelativePath)), nil
}

func (s *Server) listNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	order, err := models.ParseSortOrder(req.GetString("sort", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes := s.svc.Grid(index.GridQuery{
		Folder:    req.GetString("folder", ""),
		Recursive: boolArg(req, "recursive", false),
		Sort:      order,
	})
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	paths := make([]string, len(notes))
	for i, n := range notes {
		paths[i] = n.RelativePath
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func (s *Server) listFolders(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders := s.svc.Index().Folders()
	paths := make([]string, len(folders))
	for i, f := range folders {
		paths[i] = "/" + f.RelativePath
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) toggleCompleted(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.ToggleCompleted(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	done, _ := frontmatter.Completed(n.Content)
	state := "no"
	if done {
		state = "yes"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: completed? %s", n.RelativePath, state)), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
