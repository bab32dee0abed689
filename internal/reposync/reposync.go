// Package reposync is the boundary to the version-control collaborator that
// clones, commits, pulls and pushes a notes repository.
package reposync

import (
	"context"
	"time"
)

// Credentials authenticate against a remote.
type Credentials struct {
	Username string
	Password string
	// SSHKey, when set, is a private key in PEM form.
	SSHKey string
}

// Progress receives clone progress in percent.
type Progress func(percent int)

// RepoSync drives a working tree. The note service only asks it to move the
// tree and to report the revision, and reindexes when the revision changes.
type RepoSync interface {
	CloneInto(ctx context.Context, path, remoteURL string, creds Credentials, progress Progress) error
	CommitAll(ctx context.Context, author string) error
	Pull(ctx context.Context, creds Credentials) error
	Push(ctx context.Context, creds Credentials) error
	// CurrentRevision identifies the checked out commit.
	CurrentRevision(ctx context.Context) (string, error)
	// Timestamps returns last commit times by note path, used in place of file
	// modification times that a checkout resets. It may return nil.
	Timestamps(ctx context.Context) (map[string]time.Time, error)
}

// Nop is a RepoSync for repositories without version control. Every
// operation succeeds and the revision is always "".
type Nop struct{}

var _ RepoSync = Nop{}

func (Nop) CloneInto(context.Context, string, string, Credentials, Progress) error { return nil }
func (Nop) CommitAll(context.Context, string) error { return nil }
func (Nop) Pull(context.Context, Credentials) error { return nil }
func (Nop) Push(context.Context, Credentials) error { return nil }
func (Nop) CurrentRevision(context.Context) (string, error) { return "", nil }
func (Nop) Timestamps(context.Context) (map[string]time.Time, error) { return nil, nil }
