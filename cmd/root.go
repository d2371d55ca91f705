package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/allocator"
	"github.com/joescharf/jpa/internal/jira"
	"github.com/joescharf/jpa/internal/metrics"
	"github.com/joescharf/jpa/internal/output"
	"github.com/joescharf/jpa/internal/store"
	"github.com/joescharf/jpa/internal/triage"
)

// Store backends accepted by store.backend.
const (
	backendJira   = "jira"
	backendSQLite = "sqlite"
	backendMemory = "memory"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.IssueStore
	cacheDB   *store.SQLiteStore

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "jpa",
	Short: "Jira project assistant - triage issues and balance assignments",
	Long: `jpa surfaces a Jira project's issues and team, highlights problematic
issues (unassigned, or low priority with a close deadline), lets you fix
them, and distributes unassigned issues across the team without exceeding
a per-person limit.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/jpa/config.yaml)")
	rootCmd.PersistentFlags().StringP("project", "p", "", "Jira project key (default from config)")
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "jpa")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("JPA")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "jpa"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(configDir string) {
	viper.SetDefault("db_path", filepath.Join(configDir, "jpa.db"))
	viper.SetDefault("project", "")
	viper.SetDefault("store.backend", backendJira)
	viper.SetDefault("jira.base_url", "")
	viper.SetDefault("jira.email", "")
	viper.SetDefault("jira.api_token", "")
	viper.SetDefault("jira.page_size", jira.DefaultPageSize)
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("assign.cap", allocator.DefaultCap)
	viper.SetDefault("assign.policy", allocator.PolicyRoundRobin)
	viper.SetDefault("assign.seed", 0)
	viper.SetDefault("triage.deadline_days", 7)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Stores are opened lazily, only when commands actually need them.
	// This allows config/version commands to run without credentials.
}

// rootRun handles `jpa` with no subcommand: show the default project's status.
func rootRun(cmd *cobra.Command) error {
	if viper.GetString("project") == "" {
		return cmd.Help()
	}
	return statusRun(cmd)
}

// newLogger returns the diagnostics logger: text to stderr, debug when verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getStore returns the shared issue store, selecting the backend on first call.
func getStore() (store.IssueStore, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := openStore(viper.GetString("store.backend"), newLogger())
	if err != nil {
		return nil, err
	}
	dataStore = s
	return dataStore, nil
}

func openStore(backend string, logger *slog.Logger) (store.IssueStore, error) {
	switch backend {
	case backendMemory:
		return store.NewMemoryStore(store.SampleSnapshot(time.Now())), nil

	case backendSQLite:
		return getCache()

	case backendJira, "":
		client, err := newJiraClient(logger)
		if err != nil {
			return nil, err
		}
		if !viper.GetBool("cache.enabled") {
			return client, nil
		}
		cache, err := getCache()
		if err != nil {
			ui.Warning("Offline cache unavailable: %v", err)
			return client, nil
		}
		return store.NewFallbackStore(client, cache, logger), nil

	default:
		return nil, fmt.Errorf("unknown store backend: %s (want %s, %s or %s)", backend, backendJira, backendSQLite, backendMemory)
	}
}

func newJiraClient(logger *slog.Logger) (*jira.Client, error) {
	return jira.NewClient(jira.Config{
		BaseURL:  viper.GetString("jira.base_url"),
		Email:    viper.GetString("jira.email"),
		APIToken: viper.GetString("jira.api_token"),
		PageSize: viper.GetInt("jira.page_size"),
	}, jira.WithLogger(logger))
}

// getCache returns the shared SQLite cache, opening and migrating it on
// first call.
func getCache() (*store.SQLiteStore, error) {
	if cacheDB != nil {
		return cacheDB, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	cacheDB = s
	return cacheDB, nil
}

// requireProject returns the selected project key.
func requireProject() (string, error) {
	key := viper.GetString("project")
	if key == "" {
		return "", fmt.Errorf("no project selected: use --project or set 'project' in the config file")
	}
	return key, nil
}

func classifier() triage.Classifier {
	return triage.NewClassifier(time.Duration(viper.GetInt("triage.deadline_days")) * 24 * time.Hour)
}

func assignCap() int {
	return viper.GetInt("assign.cap")
}

// newAllocator builds an allocator from the assign.* settings.
func newAllocator(s store.IssueStore, dry bool, rec metrics.Recorder, logger *slog.Logger) (*allocator.Allocator, error) {
	build, err := allocatorFactory(s, rec, logger)
	if err != nil {
		return nil, err
	}
	return build(dry), nil
}

// allocatorFactory validates the assign.* settings once and returns a
// constructor for allocators that differ only in dry-run mode.
func allocatorFactory(s store.IssueStore, rec metrics.Recorder, logger *slog.Logger) (func(dry bool) *allocator.Allocator, error) {
	selector, err := allocator.NewSelectorFactory(viper.GetString("assign.policy"), viper.GetInt64("assign.seed"))
	if err != nil {
		return nil, err
	}
	limit := assignCap()
	return func(dry bool) *allocator.Allocator {
		return allocator.New(s,
			allocator.WithCap(limit),
			allocator.WithSelector(selector),
			allocator.WithDryRun(dry),
			allocator.WithRecorder(rec),
			allocator.WithLogger(logger),
		)
	}, nil
}
