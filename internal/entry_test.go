package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	repo := filepath.Join(dir, "notes")
	if err := os.MkdirAll(filepath.Join(repo, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"groceries.md":  "milk and eggs",
		"sub/plan.md":   "plan the groceries run",
		".git/HEAD":     "ref: refs/heads/main",
		"sub/image.png": "\x89PNG",
	} {
		p := filepath.Join(repo, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := NewDefaultConfig()
	cfg.Repo.Path = repo
	cfg.SQLite.Path = filepath.Join(dir, "gitnote.db")
	return cfg
}

func TestRequiresConfig(t *testing.T) {
	if _, err := Reindex(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestReindexCommand(t *testing.T) {
	cfg := testConfig(t)
	snap, err := Reindex(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if snap.NoteCount() != 2 {
		t.Errorf("notes = %d, want 2", snap.NoteCount())
	}
	if snap.FolderCount() != 2 {
		t.Errorf("folders = %d, want 2 (root and sub)", snap.FolderCount())
	}
	if _, err := os.Stat(cfg.SQLite.Path); err != nil {
		t.Errorf("mirror not created: %v", err)
	}
}

func TestSearchCommand(t *testing.T) {
	cfg := testConfig(t)
	results, err := Search(context.Background(), "groceries", WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Note.RelativePath != "groceries.md" || !results[0].ByName {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].Note.RelativePath != "sub/plan.md" {
		t.Errorf("second = %s", results[1].Note.RelativePath)
	}
}

func TestSearchWithoutMirror(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLite.Path = ""
	results, err := Search(context.Background(), "plan", WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Note.RelativePath != "sub/plan.md" {
		t.Errorf("results = %+v", results)
	}
}
