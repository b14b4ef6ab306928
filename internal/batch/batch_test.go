package batch

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-commit-collector/internal/collector"
	custom_errors "github-commit-collector/internal/errors"
	"github-commit-collector/internal/model"
	"github-commit-collector/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// stubCollector returns canned results per repository.
type stubCollector struct {
	results map[string]*model.CollectionResult
	errs    map[string]error
	calls   []string
	since   map[string]time.Time
}

func (s *stubCollector) Collect(ctx context.Context, owner, name string, opts collector.Options) (*model.CollectionResult, error) {
	key := owner + "/" + name
	s.calls = append(s.calls, key)
	if s.since == nil {
		s.since = make(map[string]time.Time)
	}
	s.since[key] = opts.Since
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	return s.results[key], nil
}

func resultFor(owner, name string, committed ...time.Time) *model.CollectionResult {
	repoID := "https://github.com/" + owner + "/" + name
	result := &model.CollectionResult{
		Repository: &model.Repository{
			RepositoryID:  repoID,
			Name:          name,
			Owner:         owner,
			CreatedAt:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			LastUpdatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Blobs: map[string][]byte{},
	}
	if len(committed) > 0 {
		result.Authors = []model.Author{{AuthorID: "dev@example.com", Name: "Dev", Email: "dev@example.com"}}
	}
	for i, ts := range committed {
		result.Commits = append(result.Commits, model.Commit{
			CommitHash:   string(rune('a' + i)),
			RepositoryID: repoID,
			AuthorID:     "dev@example.com",
			CommitterID:  "dev@example.com",
			AuthoredAt:   ts.Add(-time.Minute),
			CommittedAt:  ts,
			ParentHashes: []string{},
		})
	}
	return result
}

func newTestRunner(t *testing.T, stub *stubCollector) (*Runner, *storage.MemStore, *storage.WatermarkStore) {
	t.Helper()
	store := storage.NewMemStore()
	logger := testLogger()
	watermarks := storage.NewWatermarkStore(store, logger)
	runner := NewRunner(stub,
		storage.NewTransformer(store, logger),
		storage.NewContentStore(store, logger),
		watermarks,
		t.TempDir(), 100, logger)
	return runner, store, watermarks
}

func TestParseRepositories(t *testing.T) {
	refs, skipped := ParseRepositories("a/b, bad-token ,c/d", testLogger())

	assert.Equal(t, []RepoRef{{Owner: "a", Name: "b"}, {Owner: "c", Name: "d"}}, refs)
	assert.Equal(t, 1, skipped)
}

func TestRunner_SkipsMalformedTokens(t *testing.T) {
	stub := &stubCollector{results: map[string]*model.CollectionResult{
		"a/b": resultFor("a", "b", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)),
		"c/d": resultFor("c", "d", time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)),
	}}
	runner, _, _ := newTestRunner(t, stub)

	tally, err := runner.Run(context.Background(), "a/b, bad-token ,c/d")

	require.NoError(t, err)
	assert.Equal(t, Tally{Succeeded: 2, Failed: 0, Skipped: 1}, tally)
	assert.Equal(t, []string{"a/b", "c/d"}, stub.calls, "collection attempted for exactly the two valid repositories")
}

func TestRunner_FailureDoesNotAbortBatch(t *testing.T) {
	stub := &stubCollector{
		results: map[string]*model.CollectionResult{
			"c/d": resultFor("c", "d", time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)),
		},
		errs: map[string]error{
			"a/b": &custom_errors.TransientError{Err: context.DeadlineExceeded},
		},
	}
	runner, _, _ := newTestRunner(t, stub)

	tally, err := runner.Run(context.Background(), "a/b,c/d")

	require.NoError(t, err)
	assert.Equal(t, Tally{Succeeded: 1, Failed: 1}, tally)
	assert.Equal(t, []string{"a/b", "c/d"}, stub.calls)
}

func TestRunner_AuthErrorAbortsBatch(t *testing.T) {
	stub := &stubCollector{
		errs: map[string]error{
			"a/b": &custom_errors.AuthError{Err: context.DeadlineExceeded},
		},
	}
	runner, _, _ := newTestRunner(t, stub)

	tally, err := runner.Run(context.Background(), "a/b,c/d")

	require.Error(t, err)
	assert.True(t, custom_errors.IsAuth(err))
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, []string{"a/b"}, stub.calls, "remaining repositories are not attempted with a bad credential")
}

func TestRunner_WatermarkAdvancesToMaxCommitted(t *testing.T) {
	latest := time.Date(2023, 5, 3, 12, 0, 0, 0, time.UTC)
	stub := &stubCollector{results: map[string]*model.CollectionResult{
		"a/b": resultFor("a", "b", latest.Add(-48*time.Hour), latest, latest.Add(-24*time.Hour)),
	}}
	runner, _, watermarks := newTestRunner(t, stub)

	_, err := runner.Run(context.Background(), "a/b")
	require.NoError(t, err)

	got, err := watermarks.Get(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.True(t, got.Equal(latest))
}

func TestRunner_EmptyRunLeavesWatermarkUntouched(t *testing.T) {
	existing := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	stub := &stubCollector{results: map[string]*model.CollectionResult{
		"a/b": resultFor("a", "b"), // zero commits since the watermark
	}}
	runner, _, watermarks := newTestRunner(t, stub)

	ctx := context.Background()
	require.NoError(t, watermarks.Set(ctx, "a", "b", existing))

	tally, err := runner.Run(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Succeeded)

	// The stored watermark bounded the run...
	assert.True(t, stub.since["a/b"].Equal(existing))

	// ...and an empty batch never regresses or clears it.
	got, err := watermarks.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, got.Equal(existing))
}

func TestRunner_PersistsThroughTheJSONSeam(t *testing.T) {
	committed := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	result := resultFor("a", "b", committed)
	hash := "feedface"
	result.Blobs[hash] = []byte("content")
	result.Patches = []model.Patch{{CommitHash: "a", FilePath: "x.go", Text: "@@"}}

	stub := &stubCollector{results: map[string]*model.CollectionResult{"a/b": result}}
	runner, store, _ := newTestRunner(t, stub)

	ctx := context.Background()
	_, err := runner.Run(ctx, "a/b")
	require.NoError(t, err)

	// Metadata partitions, blob and patch all landed at their keys.
	repoID := "https://github.com/a/b"
	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, keys, storage.RepositoryKey(repoID))
	assert.Contains(t, keys, storage.CommitsKey(repoID, 2023, 5))
	assert.Contains(t, keys, storage.AuthorsKey())
	assert.Contains(t, keys, storage.BlobKey(hash))
	assert.Contains(t, keys, storage.PatchKey("a", "x.go"))

	query := storage.NewQuery(store)
	commits, err := query.CommitsByRepository(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.True(t, commits[0].CommittedAt.Equal(committed))
}
