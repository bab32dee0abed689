package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/gitnote/internal"
	pkgconfig "github.com/starford/gitnote/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadIfExists(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	if p := cmd.String("repo"); p != "" {
		cfg.Repo.Path = p
	}
	return cfg, nil
}

func options(cmd *cli.Command, extra ...internal.Option) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return append([]internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, extra...), nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	snap, err := internal.Reindex(ctx, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d notes in %d folders\n", snap.NoteCount(), snap.FolderCount())
	return nil
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search: a query is required")
	}
	opts, err := options(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	results, err := internal.Search(ctx, query, opts...)
	if err != nil {
		return err
	}
	for _, r := range results {
		match := "content"
		if r.ByName {
			match = "name"
		}
		fmt.Printf("%3d\t%s\t%s\n", r.Score, match, r.Note.RelativePath)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "gitnote",
		Usage:   "Index, search and edit a git repository of plain-text notes",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Notes repository path, overrides repo.path",
				Sources: cli.EnvVars("GITNOTE_REPO"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the index and its SQLite mirror",
				Action: reindex,
			},
			{
				Name:      "search",
				Usage:     "Fuzzy search note names and content",
				ArgsUsage: "<query>",
				Action:    search,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
