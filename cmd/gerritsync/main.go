package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/gerritsync/internal/config"
	"github.com/schaermu/gerritsync/internal/gerrit"
	"github.com/schaermu/gerritsync/internal/shell"
	"github.com/schaermu/gerritsync/internal/sync"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	confFile     string
	projectsFile string
	logLevel     string
	logFormat    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gerritsync",
	Short: "Reconcile declared projects against a Gerrit server",
	Long: `gerritsync reads a project registry (projects.ini defaults plus a
projects.yaml listing) and brings a Gerrit review server and a local bare
mirror pool in line with it: creating projects and mirrors, importing or
refreshing working copies, mirroring upstream branches, and syncing
access-control policy files.

The batch is safe to re-run: every action is idempotent and a project that
failed this run is retried on the next one.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync [project...]",
	Short: "Reconcile all declared projects, or only the named ones",
	Long: `Sync processes every project in the registry in declaration order.
Positional arguments restrict the run to the named projects.

A failure in one project is logged and does not stop the batch; the command
exits non-zero only when the registry cannot be loaded or batch setup (server
listing, SSH credential wrapper) fails.`,
	RunE: runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gerritsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	syncCmd.Flags().StringVar(&confFile, "config", "/home/gerrit2/projects.ini", "defaults file (ini)")
	syncCmd.Flags().StringVar(&projectsFile, "projects", "/home/gerrit2/projects.yaml", "project listing file (yaml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	for _, f := range []string{confFile, projectsFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("file must exist: %s", f)
		}
	}

	logger.Info("loading registry", "config", confFile, "projects", projectsFile)
	cfg, err := config.Load(confFile, projectsFile)
	if err != nil {
		return err
	}

	client, err := gerrit.NewSSHClient(cfg.Defaults.GerritHost, cfg.Defaults.GerritPort,
		cfg.Defaults.GerritUser, cfg.Defaults.GerritKey, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	engine := sync.New(cfg, client, shell.NewExecRunner(logger), logger)
	report, err := engine.Run(ctx, args)
	if err != nil {
		logger.Error("reconciliation aborted", "error", err)
		return err
	}

	synced, skipped, failed := report.Counts()
	logger.Info("reconciliation finished",
		"synced", synced, "skipped", skipped, "failed", failed)
	for _, res := range report.Failed() {
		logger.Error("project failed", "project", res.Project, "error", res.Err)
	}

	// Per-project failures are reported through logs, not the exit code.
	return nil
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
