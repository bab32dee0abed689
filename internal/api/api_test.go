package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/noteservice"
	"github.com/starford/gitnote/internal/testutil"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) PublishNoteEvent(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+path)
}

func (r *recordedEvents) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

type testEnv struct {
	dir    string
	svc    *noteservice.Service
	router http.Handler
	events *recordedEvents
}

func newTestEnv(t *testing.T, files map[string]string, token string) *testEnv {
	t.Helper()
	dir, fs := testutil.TestRepo(t, files)
	svc := noteservice.New(fs, index.New(testutil.Logger()),
		noteservice.WithStore(testutil.TestStore(t)),
		noteservice.WithLogger(testutil.Logger()),
	)
	t.Cleanup(svc.Close)
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := &recordedEvents{}
	router := NewRouter(svc, RouterConfig{
		AuthEnabled: token != "",
		Token:       token,
		Events:      events,
		Logger:      testutil.Logger(),
	})
	return &testEnv{dir: dir, svc: svc, router: router, events: events}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndGetNote(t *testing.T) {
	env := newTestEnv(t, nil, "")

	w := env.do(t, http.MethodPost, "/notes", CreateNoteRequest{Path: "hello", Content: "# Hello\nWorld"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decodeBody[NoteDetail](t, w)
	if created.Path != "hello.md" {
		t.Errorf("path = %q, want hello.md", created.Path)
	}

	w = env.do(t, http.MethodGet, "/notes/hello.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	note := decodeBody[NoteDetail](t, w)
	if note.Summary.Title != "Hello" {
		t.Errorf("title = %q, want Hello", note.Summary.Title)
	}
	if got := w.Header().Get("ETag"); got != strconv.Quote(note.Checksum) {
		t.Errorf("ETag = %q, want quoted checksum %q", got, note.Checksum)
	}
	if got := env.events.list(); !slices.Equal(got, []string{"created:hello.md"}) {
		t.Errorf("events = %v", got)
	}
}

func TestCreateDuplicate(t *testing.T) {
	env := newTestEnv(t, nil, "")

	body := CreateNoteRequest{Path: "dup.md", Content: "a"}
	if w := env.do(t, http.MethodPost, "/notes", body); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/notes", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t, nil, "")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing path", CreateNoteRequest{Content: "x"}, http.StatusBadRequest},
		{"traversal", CreateNoteRequest{Path: "../escape.md"}, http.StatusBadRequest},
		{"binary extension", CreateNoteRequest{Path: "photo.png"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodPost, "/notes", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	env := newTestEnv(t, map[string]string{"lock.md": "v1"}, "")
	checksum := noteservice.Checksum("v1")
	content := "v2"

	w := env.do(t, http.MethodPut, "/notes/lock.md", UpdateNoteRequest{Content: &content}, "If-Match", `"stale"`)
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update = %d, want 409", w.Code)
	}

	w = env.do(t, http.MethodPut, "/notes/lock.md", UpdateNoteRequest{Content: &content}, "If-Match", strconv.Quote(checksum))
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[NoteDetail](t, w); got.Content != "v2" {
		t.Errorf("content = %q, want v2", got.Content)
	}

	data, _ := os.ReadFile(filepath.Join(env.dir, "lock.md"))
	if string(data) != "v2" {
		t.Errorf("disk content = %q", data)
	}
}

func TestUpdateRequiresContent(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "x"}, "")
	if w := env.do(t, http.MethodPut, "/notes/a.md", map[string]string{"path": "b.md"}); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateRenames(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "x", "taken.md": "y"}, "")
	content := "moved"

	w := env.do(t, http.MethodPut, "/notes/a.md", UpdateNoteRequest{Path: "taken.md", Content: &content})
	if w.Code != http.StatusConflict {
		t.Errorf("rename onto existing = %d, want 409", w.Code)
	}

	w = env.do(t, http.MethodPut, "/notes/a.md", UpdateNoteRequest{Path: "dir/renamed", Content: &content})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[NoteDetail](t, w); got.Path != "dir/renamed.md" {
		t.Errorf("path = %q", got.Path)
	}
	if w := env.do(t, http.MethodGet, "/notes/a.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("old path = %d, want 404", w.Code)
	}
	want := []string{"deleted:a.md", "created:dir/renamed.md"}
	if got := env.events.list(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestUpdateMissing(t *testing.T) {
	env := newTestEnv(t, nil, "")
	content := "x"
	if w := env.do(t, http.MethodPut, "/notes/nope.md", UpdateNoteRequest{Content: &content}); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t, map[string]string{"del.md": "bye"}, "")

	if w := env.do(t, http.MethodDelete, "/notes/del.md", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "del.md")); !os.IsNotExist(err) {
		t.Errorf("file still on disk: %v", err)
	}
	if w := env.do(t, http.MethodDelete, "/notes/del.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestDeleteKeepsRepositoryFiles(t *testing.T) {
	env := newTestEnv(t, map[string]string{".git/config": "[core]", "image.png": "png"}, "")

	if w := env.do(t, http.MethodDelete, "/notes/.git/config", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete .git/config = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/notes/image.png", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete image.png = %d, want 404", w.Code)
	}
	w := env.do(t, http.MethodDelete, "/folders/.git", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete .git = %d", w.Code)
	}
	if got := decodeBody[DeleteResponse](t, w); got.Deleted != 0 {
		t.Errorf("deleted = %d, want 0", got.Deleted)
	}
	for _, rel := range []string{".git/config", "image.png"} {
		if _, err := os.Stat(filepath.Join(env.dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("%s removed: %v", rel, err)
		}
	}
	if got := env.events.list(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestDeleteNotes(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "a", "b.md": "b", "c.md": "c"}, "")

	if w := env.do(t, http.MethodDelete, "/notes", DeleteNotesRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch = %d, want 400", w.Code)
	}

	w := env.do(t, http.MethodDelete, "/notes", DeleteNotesRequest{Paths: []string{"a.md", "b.md", "missing.md"}})
	if w.Code != http.StatusOK {
		t.Fatalf("batch delete = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[DeleteResponse](t, w); got.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", got.Deleted)
	}
	if n := env.svc.Index().Snapshot().NoteCount(); n != 1 {
		t.Errorf("remaining notes = %d, want 1", n)
	}
}

func TestListNotes(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"a.md":     "---\ntags:\n  - work\n---\nA",
		"b.md":     "B",
		"sub/c.md": "C",
	}, "")

	paths := func(target string) []string {
		t.Helper()
		w := env.do(t, http.MethodGet, target, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s = %d, body = %s", target, w.Code, w.Body.String())
		}
		resp := decodeBody[NoteListResponse](t, w)
		if resp.Total != len(resp.Notes) {
			t.Errorf("total = %d, notes = %d", resp.Total, len(resp.Notes))
		}
		var out []string
		for _, n := range resp.Notes {
			out = append(out, n.Path)
		}
		return out
	}

	tests := []struct {
		target string
		want   []string
	}{
		{"/notes", []string{"a.md", "b.md"}},
		{"/notes?sort=za", []string{"b.md", "a.md"}},
		{"/notes?recursive=true", []string{"a.md", "b.md", "sub/c.md"}},
		{"/notes?folder=sub", []string{"sub/c.md"}},
		{"/notes?recursive=true&tag=work", []string{"a.md"}},
	}
	for _, tt := range tests {
		if got := paths(tt.target); !slices.Equal(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.target, got, tt.want)
		}
	}

	for _, bad := range []string{"/notes?sort=sideways", "/notes?completed=maybe", "/notes?recursive=often"} {
		if w := env.do(t, http.MethodGet, bad, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", bad, w.Code)
		}
	}
}

func TestToggleCompleted(t *testing.T) {
	env := newTestEnv(t, map[string]string{"task.md": "# Task"}, "")

	w := env.do(t, http.MethodPost, "/notes/task.md/toggle-completed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d, body = %s", w.Code, w.Body.String())
	}
	got := decodeBody[NoteDetail](t, w)
	if got.Summary.Completed == nil || !*got.Summary.Completed {
		t.Errorf("completed = %v, want true", got.Summary.Completed)
	}

	w = env.do(t, http.MethodGet, "/notes?completed=completed", nil)
	if resp := decodeBody[NoteListResponse](t, w); resp.Total != 1 {
		t.Errorf("completed listing total = %d, want 1", resp.Total)
	}

	if w := env.do(t, http.MethodPost, "/notes/task.md/archive", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/notes/missing.md/toggle-completed", nil); w.Code != http.StatusNotFound {
		t.Errorf("toggle missing = %d, want 404", w.Code)
	}
}

func TestFolders(t *testing.T) {
	env := newTestEnv(t, map[string]string{"sub/c.md": "C", "sub/deep/d.md": "D"}, "")

	if w := env.do(t, http.MethodPost, "/folders", CreateFolderRequest{Path: "projects"}); w.Code != http.StatusCreated {
		t.Fatalf("create folder = %d, body = %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, "/folders", CreateFolderRequest{Path: "projects"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate folder = %d, want 409", w.Code)
	}

	w := env.do(t, http.MethodGet, "/folders", nil)
	folders := decodeBody[map[string][]FolderItem](t, w)["folders"]
	var names []string
	for _, f := range folders {
		names = append(names, f.Path)
	}
	for _, want := range []string{"", "projects", "sub", "sub/deep"} {
		if !slices.Contains(names, want) {
			t.Errorf("folders %v missing %q", names, want)
		}
	}

	w = env.do(t, http.MethodGet, "/drawer", nil)
	drawer := decodeBody[map[string][]DrawerItem](t, w)["folders"]
	if len(drawer) != 2 || drawer[0].Path != "projects" || drawer[1].Path != "sub" {
		t.Fatalf("drawer = %+v", drawer)
	}
	if drawer[1].NoteCount != 2 {
		t.Errorf("sub note count = %d, want 2", drawer[1].NoteCount)
	}

	w = env.do(t, http.MethodDelete, "/folders/sub", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete folder = %d", w.Code)
	}
	if got := decodeBody[DeleteResponse](t, w); got.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", got.Deleted)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "sub")); !os.IsNotExist(err) {
		t.Errorf("folder still on disk: %v", err)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"groceries.md": "milk and eggs",
		"work.md":      "buy groceries after the meeting",
		"other.md":     "nothing here",
	}, "")

	if w := env.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}

	w := env.do(t, http.MethodGet, "/search?q=groceries", nil)
	resp := decodeBody[SearchResponse](t, w)
	if len(resp.Results) != 2 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Path != "groceries.md" || !resp.Results[0].ByName {
		t.Errorf("first = %+v, want name hit on groceries.md", resp.Results[0])
	}
	if resp.Results[1].Path != "work.md" || resp.Results[1].ByName {
		t.Errorf("second = %+v, want content hit on work.md", resp.Results[1])
	}
}

func TestFullTextSearch(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "the quick brown fox", "b.md": "lazy dog"}, "")

	w := env.do(t, http.MethodGet, "/fts?q=brown", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("fts = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody[FullTextResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].Path != "a.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "a"}, "")
	if err := os.WriteFile(filepath.Join(env.dir, "outside.md"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reindex = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[IndexResponse](t, w); got.Notes != 2 {
		t.Errorf("notes = %d, want 2", got.Notes)
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "a"}, "")
	w := env.do(t, http.MethodPost, "/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody[IndexResponse](t, w); got.Notes != 1 {
		t.Errorf("notes = %d, want 1", got.Notes)
	}
}

func TestEncodedSlashPath(t *testing.T) {
	env := newTestEnv(t, map[string]string{"topics/note.md": "x"}, "")
	if w := env.do(t, http.MethodGet, "/notes/topics%2Fnote.md", nil); w.Code != http.StatusOK {
		t.Errorf("encoded path = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, nil, "secret")

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic secret"}, http.StatusUnauthorized},
		{"valid", []string{"Authorization", "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodGet, "/folders", nil, tt.header...); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
