package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gitnote/internal/index"
	"github.com/starford/gitnote/internal/ranker"
	"github.com/starford/gitnote/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Repo   RepoConfig        `yaml:"repo"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Index  IndexConfig       `yaml:"index"`
	Search SearchConfig      `yaml:"search"`
	Watch  WatchConfig       `yaml:"watch"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Repo, &c.SQLite, &c.Index, &c.Search, &c.Watch, &c.Auth} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventsInterval bounds how often index.updated is pushed to SSE clients.
	EventsInterval time.Duration `yaml:"events_interval"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.EventsInterval, validation.Min(time.Duration(0))),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// RepoConfig locates the notes working tree.
type RepoConfig struct {
	Path string `yaml:"path"`
	// Author signs commits made on behalf of the user.
	Author string `yaml:"author"`
}

// Validate validates the repository configuration.
func (c *RepoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite mirror configuration. An empty path disables
// the mirror and full-text search.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return nil
}

// IndexConfig tunes full rebuilds.
type IndexConfig struct {
	MaxFileSize     int64    `yaml:"max_file_size"`
	ExtraExtensions []string `yaml:"extra_extensions"`
	Workers         int      `yaml:"workers"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxFileSize, validation.Min(int64(0))),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.ExtraExtensions, validation.Each(validation.Required)),
	)
}

// SearchConfig tunes fuzzy ranking.
type SearchConfig struct {
	MinScore int `yaml:"min_score"`
	// Limit caps the number of results; 0 means unlimited.
	Limit int `yaml:"limit"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinScore, validation.Min(0), validation.Max(100)),
		validation.Field(&c.Limit, validation.Min(0)),
	)
}

// WatchConfig controls the optional filesystem watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			EventsInterval: 500 * time.Millisecond,
		},
		Repo: RepoConfig{
			Path:   "./notes",
			Author: "gitnote",
		},
		SQLite: SQLiteConfig{
			Path: "./gitnote.db",
		},
		Index: IndexConfig{
			MaxFileSize: index.DefaultMaxFileSize,
		},
		Search: SearchConfig{
			MinScore: ranker.MinScore,
			Limit:    50,
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
