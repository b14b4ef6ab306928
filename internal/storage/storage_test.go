package storage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-commit-collector/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const repoID = "https://github.com/test/repo"

func testCommit(hash string, authored time.Time) model.Commit {
	return model.Commit{
		CommitHash:        hash,
		RepositoryID:      repoID,
		AuthorID:          "dev@example.com",
		CommitterID:       "dev@example.com",
		Message:           "commit " + hash,
		AuthoredAt:        authored,
		CommittedAt:       authored.Add(time.Minute),
		ParentHashes:      []string{"parent-of-" + hash},
		TreeHash:          "tree-" + hash,
		StatsLinesAdded:   7,
		StatsLinesDeleted: 2,
		StatsFilesChanged: 1,
	}
}

func TestEscapeID(t *testing.T) {
	assert.Equal(t, "https___github.com_test_repo", EscapeID(repoID))
	// Escaping is deterministic: same input, same partition segment.
	assert.Equal(t, EscapeID(repoID), EscapeID(repoID))
}

func TestPartitionKeys(t *testing.T) {
	assert.Equal(t,
		"repositories_metadata/repository_id=https___github.com_test_repo/repository.parquet",
		RepositoryKey(repoID))
	assert.Equal(t,
		"commits_metadata/repository_id=https___github.com_test_repo/year=2023/month=05/commits.parquet",
		CommitsKey(repoID, 2023, 5))
	assert.Equal(t,
		"file_changes_metadata/repository_id=https___github.com_test_repo/file_changes.parquet",
		FileChangesKey(repoID))
	assert.Equal(t, "authors_metadata/authors.parquet", AuthorsKey())
	assert.Equal(t, "state/test_repo/last_timestamp.txt", WatermarkKey("test", "repo"))
	assert.Equal(t, "file_patches/abc/pkg_util.go.patch", PatchKey("abc", "pkg/util.go"))
}

func TestTransformer_CommitPartitionRouting(t *testing.T) {
	ctx := context.Background()
	may := testCommit("m1", time.Date(2023, 5, 10, 8, 0, 0, 0, time.UTC))
	june := testCommit("j1", time.Date(2023, 6, 2, 8, 0, 0, 0, time.UTC))

	// Route is a function of the authored date alone, not processing order.
	for _, commits := range [][]model.Commit{{may, june}, {june, may}} {
		store := NewMemStore()
		transformer := NewTransformer(store, testLogger())

		keys, err := transformer.StoreCommits(ctx, commits, repoID)
		require.NoError(t, err)

		assert.Equal(t, []string{
			CommitsKey(repoID, 2023, 5),
			CommitsKey(repoID, 2023, 6),
		}, keys)
	}
}

func TestTransformer_CommitsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	transformer := NewTransformer(store, testLogger())
	query := NewQuery(store)

	base := time.Date(2023, 5, 1, 9, 30, 0, 0, time.UTC)
	commits := make([]model.Commit, 5)
	for i := range commits {
		commits[i] = testCommit(string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
	}

	_, err := transformer.StoreCommits(ctx, commits, repoID)
	require.NoError(t, err)

	got, err := query.CommitsByRepository(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, got, len(commits))

	for i, want := range commits {
		assert.Equal(t, want.CommitHash, got[i].CommitHash)
		assert.Equal(t, want.RepositoryID, got[i].RepositoryID)
		assert.Equal(t, want.AuthorID, got[i].AuthorID)
		assert.Equal(t, want.Message, got[i].Message)
		assert.Equal(t, want.ParentHashes, got[i].ParentHashes)
		assert.Equal(t, want.TreeHash, got[i].TreeHash)
		assert.Equal(t, want.StatsLinesAdded, got[i].StatsLinesAdded)
		assert.Equal(t, want.StatsLinesDeleted, got[i].StatsLinesDeleted)
		assert.Equal(t, want.StatsFilesChanged, got[i].StatsFilesChanged)
		assert.True(t, want.AuthoredAt.Equal(got[i].AuthoredAt))
		assert.True(t, want.CommittedAt.Equal(got[i].CommittedAt))
	}
}

func TestTransformer_RerunOverwritesPartition(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	transformer := NewTransformer(store, testLogger())
	query := NewQuery(store)

	commits := []model.Commit{testCommit("a", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))}
	_, err := transformer.StoreCommits(ctx, commits, repoID)
	require.NoError(t, err)
	_, err = transformer.StoreCommits(ctx, commits, repoID)
	require.NoError(t, err)

	got, err := query.CommitsByRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Len(t, got, 1, "re-running the same window overwrites, it does not duplicate")
}

func TestQuery_EmptyRepository(t *testing.T) {
	ctx := context.Background()
	query := NewQuery(NewMemStore())

	commits, err := query.CommitsByRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Empty(t, commits)

	changes, err := query.FileChangesByRepository(ctx, repoID)
	require.NoError(t, err)
	assert.Empty(t, changes)

	repo, err := query.Repository(ctx, repoID)
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestQuery_FileChangesByType(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	transformer := NewTransformer(store, testLogger())
	query := NewQuery(store)

	hash := "0123456789abcdef0123456789abcdef01234567"
	key := BlobKey(hash)
	patchKey := PatchKey("abc", "a.go")
	changes := []model.FileChange{
		{FileChangeID: "abc_a.go", CommitHash: "abc", FilePath: "a.go", ChangeType: model.ChangeModified, FileType: "go", BlobHashAfter: &hash, ContentAfterKey: &key, PatchKey: &patchKey},
		{FileChangeID: "abc_b.md", CommitHash: "abc", FilePath: "b.md", ChangeType: model.ChangeAdded, FileType: "md"},
	}

	_, err := transformer.StoreFileChanges(ctx, changes, repoID)
	require.NoError(t, err)

	goChanges, err := query.FileChangesByType(ctx, repoID, "go")
	require.NoError(t, err)
	require.Len(t, goChanges, 1)
	assert.Equal(t, "a.go", goChanges[0].FilePath)
	require.NotNil(t, goChanges[0].BlobHashAfter)
	assert.Equal(t, hash, *goChanges[0].BlobHashAfter)
	assert.Nil(t, goChanges[0].BlobHashBefore)
}

func TestTransformer_RepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	transformer := NewTransformer(store, testLogger())
	query := NewQuery(store)

	repo := &model.Repository{
		RepositoryID:    repoID,
		Name:            "repo",
		Owner:           "test",
		Description:     "a test repository",
		PrimaryLanguage: "Go",
		CloneURL:        repoID + ".git",
		CreatedAt:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		LastUpdatedAt:   time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		Metadata: model.RepositoryMetadata{
			Stars:         42,
			Forks:         7,
			Size:          1024,
			DefaultBranch: "main",
			Topics:        []string{"go", "pipeline"},
		},
	}

	_, err := transformer.StoreRepository(ctx, repo)
	require.NoError(t, err)

	got, err := query.Repository(ctx, repoID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, repo.Name, got.Name)
	assert.Equal(t, repo.Metadata.Stars, got.Metadata.Stars)
	assert.Equal(t, repo.Metadata.Topics, got.Metadata.Topics)
}

func TestWatermarkStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	watermarks := NewWatermarkStore(store, testLogger())

	t.Run("absent watermark means full history", func(t *testing.T) {
		ts, err := watermarks.Get(ctx, "test", "repo")
		require.NoError(t, err)
		assert.True(t, ts.IsZero())
	})

	t.Run("set then get round trips", func(t *testing.T) {
		want := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, watermarks.Set(ctx, "test", "repo", want))

		got, err := watermarks.Get(ctx, "test", "repo")
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	})
}

func TestContentStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	contents := NewContentStore(store, testLogger())

	t.Run("blob round trip", func(t *testing.T) {
		key, err := contents.PutBlob(ctx, "deadbeef", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "file_blobs/deadbeef", key)

		got, err := contents.GetBlob(ctx, "deadbeef")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	})

	t.Run("patch round trip", func(t *testing.T) {
		_, err := contents.PutPatch(ctx, "abc", "pkg/util.go", "@@ -1 +1 @@")
		require.NoError(t, err)

		got, err := contents.GetPatch(ctx, "abc", "pkg/util.go")
		require.NoError(t, err)
		assert.Equal(t, "@@ -1 +1 @@", got)
	})

	t.Run("persist contents stores everything a run staged", func(t *testing.T) {
		result := &model.CollectionResult{
			Blobs: map[string][]byte{"cafe": []byte("x")},
			Patches: []model.Patch{
				{CommitHash: "abc", FilePath: "a.go", Text: "@@"},
			},
		}
		require.NoError(t, contents.PersistContents(ctx, result))

		got, err := contents.GetBlob(ctx, "cafe")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), got)
	})
}
