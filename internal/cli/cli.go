// Package cli wires configuration, credentials, and the poll orchestrator
// into a command-line application.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/openjdk-ci/releasewatch/internal/config"
	gh "github.com/openjdk-ci/releasewatch/internal/github"
	"github.com/openjdk-ci/releasewatch/internal/jenkins"
	"github.com/openjdk-ci/releasewatch/internal/orchestrator"
	"github.com/openjdk-ci/releasewatch/internal/storage"
)

// CycleSummary represents one poll cycle for JSON output of the history
// command.
type CycleSummary struct {
	Version         string    `json:"version"`
	NewestTimestamp time.Time `json:"newest_timestamp"`
	IncludeEA       bool      `json:"include_ea"`
	RetestNeeded    bool      `json:"retest_needed"`
	Forced          bool      `json:"forced"`
	JobsDispatched  int       `json:"jobs_dispatched"`
	JobsFailed      int       `json:"jobs_failed"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "releasewatch",
		Usage:    "Poll upstream binary releases and trigger downstream test jobs",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "releasewatch.yaml",
				Usage:   "path to watcher configuration file",
				EnvVars: []string{"RELEASEWATCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level for structured JSON output (debug, info, warn, error)",
				EnvVars: []string{"RELEASEWATCH_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "poll",
				Usage: "Poll tracked versions and trigger retests for unseen releases",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "version",
						Aliases: []string{"v"},
						Usage:   "version to poll (e.g., 8, 11); overrides the configured list",
					},
					&cli.BoolFlag{
						Name:  "include-ea",
						Value: true,
						Usage: "consider early-access releases, not just GA",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "dispatch the job batch even when the release was already seen",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "build and log the job batch without triggering",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "number of concurrent job triggers (overrides config)",
					},
				},
				Action: pollCommand,
			},
			{
				Name:  "history",
				Usage: "List recorded poll cycles from the history database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "version",
						Aliases: []string{"v"},
						Usage:   "restrict to one tracked version",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "maximum number of cycles to list",
					},
				},
				Action: historyCommand,
			},
		},
	}
}

// pollCommand implements the poll command.
func pollCommand(c *cli.Context) error {
	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	stdout, stderr := NewLoggers(logLevel)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		stderr.Error("missing credentials", "error", err)
		return err
	}

	watch := cfg.Watch
	if versions := c.StringSlice("version"); len(versions) > 0 {
		watch.Versions = versions
	}
	if c.IsSet("include-ea") {
		includeEA := c.Bool("include-ea")
		watch.IncludeEA = &includeEA
	}

	fetcher, err := gh.NewClient(creds.GitHubUser, creds.GitHubToken, watch.Owner)
	if err != nil {
		return fmt.Errorf("failed to create release client: %w", err)
	}

	trigger, err := jenkins.NewTrigger(
		cfg.Jenkins.BaseURL,
		creds.JenkinsUser,
		creds.JenkinsToken,
		cfg.Jenkins.GetTriggerTimeout(),
		stdout,
	)
	if err != nil {
		return fmt.Errorf("failed to create job trigger: %w", err)
	}

	db, err := initDB(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeDB(db, stderr)

	concurrency := cfg.Jenkins.Concurrency
	if c.Int("concurrency") > 0 {
		concurrency = c.Int("concurrency")
	}

	opts := orchestrator.Options{
		WorkspaceDir: cfg.Workspace.Dir,
		Concurrency:  concurrency,
		Force:        c.Bool("force") || cfg.Watch.ForceRetest,
		DryRun:       c.Bool("dry-run"),
	}

	stdout.Info("starting poll run",
		"versions", watch.Versions,
		"include_ea", watch.EAIncluded(),
		"force", opts.Force,
		"dry_run", opts.DryRun)

	o := orchestrator.New(fetcher, trigger, cycleStore(db), opts, stdout, stderr)
	if err := o.Run(c.Context, watch); err != nil {
		return fmt.Errorf("poll run failed: %w", err)
	}

	stdout.Info("poll run completed", "versions", watch.Versions)
	return nil
}

// historyCommand implements the history command.
func historyCommand(c *cli.Context) error {
	logLevel := ParseLogLevelOrDefault(c.String("log-level"))
	_, stderr := NewLoggers(logLevel)

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		stderr.Error("failed to load config", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeDB(db, stderr)

	cycles, err := db.ListCycles(c.String("version"), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list poll cycles: %w", err)
	}

	summaries := make([]CycleSummary, 0, len(cycles))
	for _, cycle := range cycles {
		summaries = append(summaries, CycleSummary{
			Version:         cycle.Version,
			NewestTimestamp: cycle.NewestTimestamp,
			IncludeEA:       cycle.IncludeEA,
			RetestNeeded:    cycle.RetestNeeded,
			Forced:          cycle.Forced,
			JobsDispatched:  cycle.JobsDispatched,
			JobsFailed:      cycle.JobsFailed,
			Status:          cycle.Status,
			Error:           cycle.ErrorMessage,
			RecordedAt:      cycle.CreatedAt,
		})
	}

	output, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

// initDB opens the poll-history database from the configuration.
func initDB(cfg *config.Config, stderr *slog.Logger) (*storage.DB, error) {
	db, err := storage.InitDB(storage.Config{
		DatabasePath: cfg.Storage.DatabasePath,
		LogLevel:     "warn",
	})
	if err != nil {
		stderr.Error("failed to initialize database", "error", err)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// closeDB closes the database, logging instead of failing during cleanup.
func closeDB(db *storage.DB, stderr *slog.Logger) {
	if err := db.Close(); err != nil {
		stderr.Warn("failed to close database", "error", err)
	}
}

// cycleStore adapts the concrete DB to the orchestrator's store interface,
// keeping the nil case explicit.
func cycleStore(db *storage.DB) orchestrator.CycleStore {
	if db == nil {
		return nil
	}
	return db
}
