// Package batch drives collection runs over a list of repositories. Each
// repository's run is independent: one failure is tallied and the driver
// moves on, except for a rejected credential, which aborts the whole batch.
package batch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github-commit-collector/internal/collector"
	"github-commit-collector/internal/dump"
	custom_errors "github-commit-collector/internal/errors"
	"github-commit-collector/internal/model"
	"github-commit-collector/internal/storage"
)

// RepoRef identifies one repository by owner and name.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

// Tally reports the outcome of one batch run.
type Tally struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Collector is the collection engine seam; satisfied by *collector.Engine.
type Collector interface {
	Collect(ctx context.Context, owner, name string, opts collector.Options) (*model.CollectionResult, error)
}

// Runner wires one batch: collect each repository since its watermark, dump
// the JSON seam, persist metadata and contents, then advance the watermark.
type Runner struct {
	engine      Collector
	transformer *storage.Transformer
	contents    *storage.ContentStore
	watermarks  *storage.WatermarkStore
	outputDir   string
	maxCommits  int
	logger      *slog.Logger
}

// NewRunner creates a batch Runner.
func NewRunner(engine Collector, transformer *storage.Transformer, contents *storage.ContentStore, watermarks *storage.WatermarkStore, outputDir string, maxCommits int, logger *slog.Logger) *Runner {
	return &Runner{
		engine:      engine,
		transformer: transformer,
		contents:    contents,
		watermarks:  watermarks,
		outputDir:   outputDir,
		maxCommits:  maxCommits,
		logger:      logger,
	}
}

// ParseRepositories splits a comma-separated list of owner/name tokens.
// Malformed tokens are logged and skipped, never fatal; the count of skipped
// tokens is returned alongside the parsed references.
func ParseRepositories(list string, logger *slog.Logger) ([]RepoRef, int) {
	var refs []RepoRef
	skipped := 0

	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		owner, name, ok := strings.Cut(token, "/")
		owner = strings.TrimSpace(owner)
		name = strings.TrimSpace(name)
		if !ok || owner == "" || name == "" {
			err := &custom_errors.MalformedInputError{Input: token, Reason: "expected 'owner/name'"}
			logger.Warn("Skipping invalid repository token", "error", err)
			skipped++
			continue
		}
		refs = append(refs, RepoRef{Owner: owner, Name: name})
	}
	return refs, skipped
}

// Run collects every repository in the list sequentially. It always returns
// a tally; the error is non-nil only when the batch as a whole had to stop
// (rejected credential).
func (r *Runner) Run(ctx context.Context, repositoryList string) (Tally, error) {
	refs, skipped := ParseRepositories(repositoryList, r.logger)
	tally := Tally{Skipped: skipped}

	r.logger.Info("Starting batch collection", "repositories", len(refs), "max_commits", r.maxCommits)

	for _, ref := range refs {
		if err := r.collectOne(ctx, ref); err != nil {
			if custom_errors.IsAuth(err) {
				r.logger.Error("Credential rejected, aborting batch", "repo", ref.String(), "error", err)
				tally.Failed++
				return tally, err
			}
			r.logger.Error("Failed to collect repository", "repo", ref.String(), "error", err)
			tally.Failed++
			continue
		}
		tally.Succeeded++
	}

	r.logger.Info("Batch collection completed",
		"succeeded", tally.Succeeded, "failed", tally.Failed, "skipped", tally.Skipped)
	return tally, nil
}

// collectOne runs the full pipeline for a single repository. The in-memory
// batch is the unit of durability: any error before the final watermark
// write leaves no new watermark, and metadata keys are deterministic so a
// retry overwrites whatever a failed attempt managed to upload.
func (r *Runner) collectOne(ctx context.Context, ref RepoRef) error {
	logger := r.logger.With("owner", ref.Owner, "repo", ref.Name)

	since, err := r.watermarks.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return err
	}
	if since.IsZero() {
		logger.Info("No watermark found, collecting full history")
	} else {
		logger.Info("Collecting incrementally", "since", since)
	}

	result, err := r.engine.Collect(ctx, ref.Owner, ref.Name, collector.Options{
		MaxCommits: r.maxCommits,
		Since:      since,
	})
	if err != nil {
		return err
	}

	// The JSON seam: persistence consumes the dumped documents, not the
	// in-memory batch.
	dumpDir := filepath.Join(r.outputDir, ref.Owner+"_"+ref.Name)
	if err := dump.Save(dumpDir, result); err != nil {
		return err
	}
	loaded, err := dump.Load(dumpDir)
	if err != nil {
		return err
	}

	if err := r.transformer.PersistMetadata(ctx, loaded); err != nil {
		return err
	}
	if err := r.contents.PersistContents(ctx, result); err != nil {
		return err
	}

	// The watermark only advances: an empty batch leaves it untouched.
	if latest := result.LatestCommitTimestamp(); !latest.IsZero() {
		if err := r.watermarks.Set(ctx, ref.Owner, ref.Name, latest); err != nil {
			return err
		}
	} else {
		logger.Info("No new commits, watermark unchanged")
	}

	return nil
}
