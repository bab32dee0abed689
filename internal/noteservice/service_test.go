package noteservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/gitnote/internal/apperr"
	"github.com/starford/gitnote/internal/frontmatter"
	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/ranker"
	"github.com/starford/gitnote/internal/reposync"
	"github.com/starford/gitnote/internal/storage"
	"github.com/starford/gitnote/internal/testutil"
)

type fakeRepo struct {
	reposync.Nop

	mu      sync.Mutex
	rev     string
	commits int
	pullErr error
	onPull  func()
}

func (r *fakeRepo) CommitAll(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits++
	return nil
}

func (r *fakeRepo) Pull(context.Context, reposync.Credentials) error {
	if r.onPull != nil {
		r.onPull()
	}
	return r.pullErr
}

func (r *fakeRepo) CurrentRevision(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rev, nil
}

func (r *fakeRepo) setRev(rev string) {
	r.mu.Lock()
	r.rev = rev
	r.mu.Unlock()
}

func (r *fakeRepo) commitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

var clock = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }

func newService(t *testing.T, files map[string]string, opts ...Option) (*Service, string, *fakeRepo) {
	t.Helper()
	dir, fs := testutil.TestRepo(t, files)
	repo := &fakeRepo{}
	opts = append([]Option{
		WithLogger(testutil.Logger()),
		WithRepo(repo, "tester", reposync.Credentials{}),
		WithClock(clock),
	}, opts...)
	svc := New(fs, index.New(testutil.Logger()), opts...)
	t.Cleanup(svc.Close)
	if err := svc.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return svc, dir, repo
}

func readFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestOpenIndexesTree(t *testing.T) {
	svc, _, _ := newService(t, map[string]string{"a.md": "a", "dir/b.txt": "b"})
	if got := len(svc.Index().Notes()); got != 2 {
		t.Errorf("notes = %d, want 2", got)
	}
}

func TestOpenRestoresMatchingMirror(t *testing.T) {
	dir, fs := testutil.TestRepo(t, map[string]string{"a.md": "a"})
	st := testutil.TestStore(t)
	repo := &fakeRepo{rev: "r1"}

	first := New(fs, index.New(testutil.Logger()), WithStore(st), WithRepo(repo, "", reposync.Credentials{}), WithLogger(testutil.Logger()))
	if err := first.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	first.Close()

	// Not yet seen by the mirror; restoring must not walk the tree.
	if err := os.WriteFile(filepath.Join(dir, "late.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := New(fs, index.New(testutil.Logger()), WithStore(st), WithRepo(repo, "", reposync.Credentials{}), WithLogger(testutil.Logger()))
	defer second.Close()
	if err := second.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := second.Index().Note("late.md"); ok {
		t.Error("restored index walked the tree")
	}
	if _, ok := second.Index().Note("a.md"); !ok {
		t.Error("restored index misses a.md")
	}

	repo.setRev("r2")
	third := New(fs, index.New(testutil.Logger()), WithStore(st), WithRepo(repo, "", reposync.Credentials{}), WithLogger(testutil.Logger()))
	defer third.Close()
	if err := third.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := third.Index().Note("late.md"); !ok {
		t.Error("revision change did not reindex")
	}
}

func TestCreateNote(t *testing.T) {
	svc, dir, repo := newService(t, nil)
	ctx := context.Background()

	n, err := svc.CreateNote(ctx, "/work/todo ", "buy milk")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if n.RelativePath != "work/todo.md" {
		t.Errorf("path = %q, want work/todo.md", n.RelativePath)
	}
	if readFile(t, dir, "work/todo.md") != "buy milk" {
		t.Error("content not written")
	}
	if _, ok := svc.Index().Folder("work"); !ok {
		t.Error("parent folder not indexed")
	}
	if repo.commitCount() != 1 {
		t.Errorf("commits = %d, want 1", repo.commitCount())
	}

	if _, err := svc.CreateNote(ctx, "work/todo.md", "again"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v, want ErrAlreadyExists", err)
	}
	for _, bad := range []string{"what?.md", "a/b:c.md", "", "photo.png"} {
		if _, err := svc.CreateNote(ctx, bad, ""); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("CreateNote(%q) err = %v, want ErrInvalidPath", bad, err)
		}
	}
}

func TestUpdateNote(t *testing.T) {
	svc, dir, _ := newService(t, map[string]string{"a.md": "v1"})
	ctx := context.Background()

	if _, err := svc.UpdateNote(ctx, "a.md", "", "v2", Checksum("stale")); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	n, err := svc.UpdateNote(ctx, "a.md", "", "v2", Checksum("v1"))
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if n.Content != "v2" || readFile(t, dir, "a.md") != "v2" {
		t.Error("content not updated")
	}

	n, err = svc.UpdateNote(ctx, "a.md", "archive/b", "v3", "")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if n.RelativePath != "archive/b.md" {
		t.Errorf("renamed path = %q", n.RelativePath)
	}
	if _, ok := svc.Index().Note("a.md"); ok {
		t.Error("old path still indexed")
	}
	if readFile(t, dir, "archive/b.md") != "v3" {
		t.Error("renamed file content wrong")
	}

	if _, err := svc.UpdateNote(ctx, "missing.md", "", "x", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestUpdateNoteRenameConflict(t *testing.T) {
	svc, _, _ := newService(t, map[string]string{"a.md": "a", "b.md": "b"})
	if _, err := svc.UpdateNote(context.Background(), "a.md", "b.md", "a", ""); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
	if n, _ := svc.Note("b.md"); n.Content != "b" {
		t.Error("rename overwrote b.md")
	}
}

func TestDeleteNote(t *testing.T) {
	svc, dir, _ := newService(t, map[string]string{"a.md": "a", "b.md": "b", "c.md": "c"})
	ctx := context.Background()

	if n, err := svc.DeleteNote(ctx, "a.md"); err != nil || n != 1 {
		t.Fatalf("DeleteNote = (%d, %v), want 1", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.md")); !os.IsNotExist(err) {
		t.Error("file still on disk")
	}
	if n, err := svc.DeleteNote(ctx, "a.md"); err != nil || n != 0 {
		t.Errorf("second DeleteNote = (%d, %v), want 0", n, err)
	}
	if n, err := svc.DeleteNotes(ctx, []string{"b.md", "c.md", "zzz.md"}); err != nil || n != 2 {
		t.Errorf("DeleteNotes = (%d, %v), want 2", n, err)
	}
}

func TestFolders(t *testing.T) {
	svc, dir, _ := newService(t, map[string]string{"x/1.md": "", "x/y/2.md": "", "z.md": ""})
	ctx := context.Background()

	if _, err := svc.CreateFolder(ctx, "new"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(dir, "new")); err != nil || !fi.IsDir() {
		t.Error("folder not created on disk")
	}
	if _, err := svc.CreateFolder(ctx, "new"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := svc.CreateFolder(ctx, "bad|name"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("invalid err = %v", err)
	}

	n, err := svc.DeleteFolder(ctx, "x")
	if err != nil || n != 2 {
		t.Fatalf("DeleteFolder = (%d, %v), want 2", n, err)
	}
	if got := len(svc.Index().Notes()); got != 1 {
		t.Errorf("notes left = %d, want 1", got)
	}
	if _, err := svc.DeleteFolder(ctx, ""); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("root delete err = %v", err)
	}
}

func TestDeleteLeavesUnindexedPaths(t *testing.T) {
	svc, dir, repo := newService(t, map[string]string{
		"a.md":        "a",
		".git/config": "[core]",
		"image.png":   "\x89PNG",
	})
	ctx := context.Background()

	for _, p := range []string{".git/config", "image.png", ".git"} {
		if n, err := svc.DeleteNote(ctx, p); err != nil || n != 0 {
			t.Errorf("DeleteNote(%q) = (%d, %v), want 0", p, n, err)
		}
	}
	if n, err := svc.DeleteNotes(ctx, []string{".git/config", "image.png"}); err != nil || n != 0 {
		t.Errorf("DeleteNotes = (%d, %v), want 0", n, err)
	}
	if n, err := svc.DeleteFolder(ctx, ".git"); err != nil || n != 0 {
		t.Errorf("DeleteFolder(.git) = (%d, %v), want 0", n, err)
	}
	if n, err := svc.DeleteFolder(ctx, "a.md"); err != nil || n != 0 {
		t.Errorf("DeleteFolder(a.md) = (%d, %v), want 0", n, err)
	}

	if readFile(t, dir, ".git/config") != "[core]" {
		t.Error(".git/config changed")
	}
	if readFile(t, dir, "image.png") != "\x89PNG" {
		t.Error("image.png changed")
	}
	if readFile(t, dir, "a.md") != "a" {
		t.Error("a.md changed")
	}
	if repo.commitCount() != 0 {
		t.Errorf("commits = %d, want 0", repo.commitCount())
	}
}

func TestCreateMatchesRebuild(t *testing.T) {
	svc, _, _ := newService(t, nil)
	ctx := context.Background()

	for _, bad := range []string{".git/notes.md", "a/.hidden/n.md", "a?b/c.md", "x/y:z/n.md"} {
		if _, err := svc.CreateNote(ctx, bad, "hi"); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("CreateNote(%q) err = %v, want ErrInvalidPath", bad, err)
		}
	}
	for _, bad := range []string{".git", "a/.cache", "a?b/c"} {
		if _, err := svc.CreateFolder(ctx, bad); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("CreateFolder(%q) err = %v, want ErrInvalidPath", bad, err)
		}
	}
	if _, err := svc.UpdateNote(ctx, "missing.md", ".git/x.md", "", ""); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("rename into hidden dir err = %v, want ErrInvalidPath", err)
	}

	if _, err := svc.CreateNote(ctx, "work/.todo.md", "hidden file"); err != nil {
		t.Fatalf("CreateNote hidden file: %v", err)
	}
	if _, err := svc.CreateFolder(ctx, "work/plans"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}

	want := pathsOf(svc.Index())
	if _, err := svc.Reindex(ctx); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if got := pathsOf(svc.Index()); got != want {
		t.Errorf("after rebuild index = %s, before = %s", got, want)
	}
}

func pathsOf(ix *index.Index) string {
	var b strings.Builder
	for _, f := range ix.Folders() {
		b.WriteString("d:" + f.RelativePath + " ")
	}
	for _, n := range ix.Notes() {
		b.WriteString("n:" + n.RelativePath + " ")
	}
	return b.String()
}

type failingWrites struct {
	*storage.FS
}

func (failingWrites) Write(string, []byte) error {
	return apperr.ErrIO
}

func TestUpdateNoteRenameRollsBack(t *testing.T) {
	dir, fs := testutil.TestRepo(t, map[string]string{"a.md": "v1"})
	svc := New(failingWrites{fs}, index.New(testutil.Logger()), WithLogger(testutil.Logger()))
	t.Cleanup(svc.Close)
	ctx := context.Background()
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := svc.UpdateNote(ctx, "a.md", "b.md", "v2", ""); !errors.Is(err, apperr.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	if readFile(t, dir, "a.md") != "v1" {
		t.Error("a.md not restored")
	}
	if _, err := os.Stat(filepath.Join(dir, "b.md")); !os.IsNotExist(err) {
		t.Error("b.md left on disk")
	}
	if _, ok := svc.Index().Note("a.md"); !ok {
		t.Error("a.md dropped from index")
	}
	if _, ok := svc.Index().Note("b.md"); ok {
		t.Error("b.md indexed")
	}
}

func TestToggleCompleted(t *testing.T) {
	svc, dir, _ := newService(t, map[string]string{"shop.md": "Shopping\n- milk\n"})
	ctx := context.Background()

	n, err := svc.ToggleCompleted(ctx, "shop.md")
	if err != nil {
		t.Fatalf("ToggleCompleted: %v", err)
	}
	if done, ok := frontmatter.Completed(n.Content); !ok || !done {
		t.Errorf("content = %q, want completed", n.Content)
	}
	if frontmatter.Body(n.Content) != "Shopping\n- milk\n" {
		t.Errorf("body changed: %q", frontmatter.Body(n.Content))
	}
	if v, _ := frontmatter.Field(n.Content, frontmatter.FieldUpdated); v != "2024-03-04 05:06:07Z" {
		t.Errorf("updated = %q", v)
	}
	if readFile(t, dir, "shop.md") != n.Content {
		t.Error("toggle not written to disk")
	}

	n, _ = svc.ToggleCompleted(ctx, "shop.md")
	if done, ok := frontmatter.Completed(n.Content); !ok || done {
		t.Errorf("second toggle content = %q", n.Content)
	}
	if _, err := svc.ToggleCompleted(ctx, "missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestSearch(t *testing.T) {
	svc, _, _ := newService(t, map[string]string{
		"groceries.md": "milk",
		"work.md":      "buy groceries later",
		"misc.md":      "nothing",
	}, WithRanker(ranker.Default, 1))
	res := svc.Search("groceries")
	if len(res) != 1 || res[0].Note.RelativePath != "groceries.md" {
		t.Errorf("results = %+v", res)
	}
	if len(res[0].Highlights) == 0 {
		t.Error("name not highlighted")
	}
}

func TestFullTextSearch(t *testing.T) {
	svc, _, _ := newService(t, map[string]string{"a.md": "needle here"}, WithStore(testutil.TestStore(t)))
	res, err := svc.FullTextSearch("needle", 10)
	if err != nil {
		t.Fatalf("FullTextSearch: %v", err)
	}
	if len(res) != 1 || res[0].Path != "a.md" {
		t.Errorf("results = %+v", res)
	}

	plain, _, _ := newService(t, nil)
	if _, err := plain.FullTextSearch("x", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound without a store", err)
	}
}

func TestSyncReindexesOnRevisionChange(t *testing.T) {
	svc, dir, repo := newService(t, map[string]string{"a.md": "a"})
	repo.onPull = func() {
		_ = os.WriteFile(filepath.Join(dir, "pulled.md"), []byte("remote"), 0o644)
		repo.setRev("r2")
	}
	if err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := svc.Index().Note("pulled.md"); !ok {
		t.Error("pulled note not indexed")
	}

	repo.onPull = nil
	repo.pullErr = errors.New("offline")
	err := svc.Sync(context.Background())
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Errorf("err = %v, want pull failure", err)
	}
}

// gatedFS blocks the first read until release is closed.
type gatedFS struct {
	*storage.FS
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedFS) Read(path string) ([]byte, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.FS.Read(path)
}

func TestReindexSupersedesRunning(t *testing.T) {
	_, fs := testutil.TestRepo(t, map[string]string{"a.md": "a"})
	gated := &gatedFS{FS: fs, started: make(chan struct{}), release: make(chan struct{})}
	svc := New(gated, index.New(testutil.Logger()), WithLogger(testutil.Logger()))
	defer svc.Close()

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Reindex(context.Background())
		firstErr <- err
	}()
	<-gated.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.Reindex(context.Background())
		secondErr <- err
	}()
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		svc.reindexMu.Lock()
		defer svc.reindexMu.Unlock()
		return svc.reindexGen == 2
	}, "second reindex never started")
	close(gated.release)

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first reindex err = %v, want context.Canceled", err)
	}
	if err := <-secondErr; err != nil {
		t.Errorf("second reindex err = %v", err)
	}
	if _, ok := svc.Index().Note("a.md"); !ok {
		t.Error("index empty after superseding reindex")
	}
}
