package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github-commit-collector/internal/api"
	"github-commit-collector/internal/batch"
	"github-commit-collector/internal/collector"
	"github-commit-collector/internal/config"
	"github-commit-collector/internal/github"
	"github-commit-collector/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:          "collector",
	Short:        "GitHub commit history collector",
	Long:         "Pulls commit history from the GitHub API, normalizes it and persists it\nto an object store as partitioned parquet, with per-repository watermarks\nfor incremental runs.",
	SilenceUsage: true,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one batch collection over the configured repositories",
	RunE:  runCollect,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled incremental collection and the read API",
	RunE:  runServe,
}

var queryCmd = &cobra.Command{
	Use:   "query <owner/name>",
	Short: "Print the stored commits of a repository as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	rootCmd.AddCommand(collectCmd, serveCmd, queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired application components.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *batch.Runner
	query  *storage.Query
}

func newApp(ctx context.Context) (*app, error) {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Connect to the object store (bucket is created if absent)
	store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object store: %w", err)
	}
	logger.Info("Object store connection established", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)

	// 4. Initialize application components
	ghClient, err := github.NewClient(cfg.GithubToken, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	engine := collector.NewEngine(ghClient, logger)
	transformer := storage.NewTransformer(store, logger)
	contents := storage.NewContentStore(store, logger)
	watermarks := storage.NewWatermarkStore(store, logger)
	runner := batch.NewRunner(engine, transformer, contents, watermarks,
		cfg.OutputDir, cfg.MaxCommitsPerRepo, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		runner: runner,
		query:  storage.NewQuery(store),
	}, nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	tally, err := a.runner.Run(ctx, a.cfg.TargetRepositories)
	a.logger.Info("Collection finished",
		"succeeded", tally.Succeeded, "failed", tally.Failed, "skipped", tally.Skipped)
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    a.cfg.HTTPAddr,
		Handler: api.NewRouter(a.query, a.logger),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting scheduler", "interval", a.cfg.SyncInterval.String())
		a.runBatch(gctx)

		ticker := time.NewTicker(a.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.runBatch(gctx)
			case <-gctx.Done():
				a.logger.Info("Scheduler shutting down", "reason", gctx.Err())
				return nil
			}
		}
	})

	g.Go(func() error {
		a.logger.Info("Starting HTTP API", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runBatch runs one scheduled batch pass. Per-repository failures are
// already tallied inside the runner; a rejected credential stops this pass
// and is retried on the next tick in case the token was rotated.
func (a *app) runBatch(ctx context.Context) {
	tally, err := a.runner.Run(ctx, a.cfg.TargetRepositories)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Batch pass aborted", "error", err)
	}
	a.logger.Info("Batch pass finished",
		"succeeded", tally.Succeeded, "failed", tally.Failed, "skipped", tally.Skipped)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	refs, _ := batch.ParseRepositories(args[0], a.logger)
	if len(refs) != 1 {
		return fmt.Errorf("invalid repository %q, expected 'owner/name'", args[0])
	}
	ref := refs[0]

	commits, err := a.query.CommitsByRepository(ctx, fmt.Sprintf("https://github.com/%s/%s", ref.Owner, ref.Name))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(commits)
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
