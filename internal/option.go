package internal

import (
	"io"

	"github.com/starford/gitnote/internal/reposync"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	version   string
	logOutput io.Writer
	repo      reposync.RepoSync
	creds     reposync.Credentials
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the JSON log. Defaults to stdout; the MCP
// command needs stderr because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithRepoSync sets the version-control collaborator. Without it the
// working tree is treated as unversioned.
func WithRepoSync(r reposync.RepoSync, creds reposync.Credentials) Option {
	return func(a *application) {
		a.repo = r
		a.creds = creds
	}
}
