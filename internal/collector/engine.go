package collector

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/google/go-github/v62/github"

	"github-commit-collector/internal/model"
)

// progressEvery sets the cadence of progress log lines during a run.
const progressEvery = 10

// SourceAPI is the slice of the hosted commit API the engine needs. The
// concrete client lives in internal/github.
type SourceAPI interface {
	GetRepository(ctx context.Context, owner, name string) (*github.Repository, error)
	Commits(ctx context.Context, owner, name string, since, until time.Time) iter.Seq2[*github.RepositoryCommit, error]
	GetCommitDetail(ctx context.Context, owner, name, sha string) (*github.RepositoryCommit, error)
	GetFileContent(ctx context.Context, owner, name, ref, path string) ([]byte, error)
}

// Options bound one repository run.
type Options struct {
	// MaxCommits truncates the run when positive; zero or negative means no
	// cap.
	MaxCommits int
	// Since and Until bound the commit window server-side when non-zero.
	// Incremental runs set Since from the repository's watermark.
	Since time.Time
	Until time.Time
}

// Engine orchestrates one repository's collection run: it walks the
// paginated commit list, fetches detail per commit and drives the Normalizer,
// accumulating results in memory. A run either completes whole or fails
// whole; there is no mid-run checkpoint.
type Engine struct {
	src    SourceAPI
	logger *slog.Logger
}

// NewEngine creates an Engine on top of a source API client.
func NewEngine(src SourceAPI, logger *slog.Logger) *Engine {
	return &Engine{src: src, logger: logger}
}

// Collect runs a full collection for one repository. On any unrecoverable
// fetch error the partially accumulated batch is discarded and the error is
// returned; nothing is persisted here.
func (e *Engine) Collect(ctx context.Context, owner, name string, opts Options) (*model.CollectionResult, error) {
	logger := e.logger.With("owner", owner, "repo", name)
	logger.Info("Starting data collection")

	rawRepo, err := e.src.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	normalizer := NewNormalizer()
	repository, err := normalizer.Repository(rawRepo)
	if err != nil {
		return nil, err
	}

	result := &model.CollectionResult{
		Repository: repository,
		Blobs:      make(map[string][]byte),
	}

	processed := 0
	for summary, err := range e.src.Commits(ctx, owner, name, opts.Since, opts.Until) {
		if err != nil {
			return nil, err
		}
		if opts.MaxCommits > 0 && processed >= opts.MaxCommits {
			logger.Info("Reached commit cap, stopping", "cap", opts.MaxCommits)
			break
		}
		if processed%progressEvery == 0 {
			logger.Info("Processing commits", "processed", processed)
		}

		detail, err := e.src.GetCommitDetail(ctx, owner, name, summary.GetSHA())
		if err != nil {
			return nil, err
		}

		commit, err := normalizer.Commit(detail, repository.RepositoryID)
		if err != nil {
			return nil, err
		}
		result.Commits = append(result.Commits, *commit)

		if err := e.collectFileChanges(ctx, owner, name, detail, normalizer, result); err != nil {
			return nil, err
		}
		processed++
	}

	result.Authors = normalizer.Authors()
	logger.Info("Completed data collection",
		"commits", len(result.Commits),
		"file_changes", len(result.FileChanges),
		"authors", len(result.Authors))
	return result, nil
}

// collectFileChanges maps every file entry of one commit, fetching the
// before side from the first parent (unless the file was added or the commit
// is a root) and the after side at the commit itself (unless the file was
// deleted). Unretrievable content stays unknown; it never fails the run.
func (e *Engine) collectFileChanges(ctx context.Context, owner, name string, detail *github.RepositoryCommit, normalizer *Normalizer, result *model.CollectionResult) error {
	sha := detail.GetSHA()

	for _, file := range detail.Files {
		kind := ChangeKind(file.GetStatus())
		path := file.GetFilename()

		// The before side of a rename lives at the old path.
		beforePath := path
		if prev := file.GetPreviousFilename(); prev != "" {
			beforePath = prev
		}

		var before, after []byte
		var err error
		if kind != model.ChangeAdded && len(detail.Parents) > 0 {
			before, err = e.src.GetFileContent(ctx, owner, name, detail.Parents[0].GetSHA(), beforePath)
			if err != nil {
				return err
			}
		}
		if kind != model.ChangeDeleted {
			after, err = e.src.GetFileContent(ctx, owner, name, sha, path)
			if err != nil {
				return err
			}
		}

		fc := normalizer.FileChange(sha, file, kind, before, after)
		result.FileChanges = append(result.FileChanges, *fc)

		if fc.BlobHashBefore != nil {
			result.Blobs[*fc.BlobHashBefore] = before
		}
		if fc.BlobHashAfter != nil {
			result.Blobs[*fc.BlobHashAfter] = after
		}
		if patch := file.GetPatch(); patch != "" {
			result.Patches = append(result.Patches, model.Patch{
				CommitHash: sha,
				FilePath:   path,
				Text:       patch,
			})
		}
	}
	return nil
}
