package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github-commit-collector/internal/model"
)

const parquetContentType = "application/octet-stream"

// Transformer groups normalized records into partitions and serializes each
// partition to a columnar blob at a deterministic key. Re-running a window
// overwrites the same keys: idempotent, not additive.
type Transformer struct {
	store  BlobStore
	logger *slog.Logger
}

// NewTransformer creates a Transformer writing to the given blob store.
func NewTransformer(store BlobStore, logger *slog.Logger) *Transformer {
	return &Transformer{store: store, logger: logger}
}

// PersistMetadata writes all four entity partitions of one run.
func (t *Transformer) PersistMetadata(ctx context.Context, result *model.CollectionResult) error {
	repositoryID := result.Repository.RepositoryID

	if _, err := t.StoreRepository(ctx, result.Repository); err != nil {
		return err
	}
	if _, err := t.StoreCommits(ctx, result.Commits, repositoryID); err != nil {
		return err
	}
	if _, err := t.StoreFileChanges(ctx, result.FileChanges, repositoryID); err != nil {
		return err
	}
	if _, err := t.StoreAuthors(ctx, result.Authors); err != nil {
		return err
	}
	return nil
}

// StoreRepository writes the single-row repository partition.
func (t *Transformer) StoreRepository(ctx context.Context, repository *model.Repository) (string, error) {
	key := RepositoryKey(repository.RepositoryID)
	data, err := marshalParquet([]model.Repository{*repository})
	if err != nil {
		return "", err
	}
	if err := t.store.Put(ctx, key, data, parquetContentType); err != nil {
		return "", err
	}
	t.logger.Info("Stored repository metadata", "key", key)
	return key, nil
}

// StoreCommits partitions commits by (repository, year, month) of the
// authored date and writes one object per partition. An empty batch writes
// nothing.
func (t *Transformer) StoreCommits(ctx context.Context, commits []model.Commit, repositoryID string) ([]string, error) {
	if len(commits) == 0 {
		return nil, nil
	}

	type yearMonth struct {
		year  int
		month int
	}
	partitions := make(map[yearMonth][]model.Commit)
	for _, c := range commits {
		ym := yearMonth{year: c.AuthoredAt.Year(), month: int(c.AuthoredAt.Month())}
		partitions[ym] = append(partitions[ym], c)
	}

	ordered := make([]yearMonth, 0, len(partitions))
	for ym := range partitions {
		ordered = append(ordered, ym)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].year != ordered[j].year {
			return ordered[i].year < ordered[j].year
		}
		return ordered[i].month < ordered[j].month
	})

	keys := make([]string, 0, len(ordered))
	for _, ym := range ordered {
		key := CommitsKey(repositoryID, ym.year, ym.month)
		data, err := marshalParquet(partitions[ym])
		if err != nil {
			return nil, err
		}
		if err := t.store.Put(ctx, key, data, parquetContentType); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	t.logger.Info("Stored commits metadata", "partitions", len(keys))
	return keys, nil
}

// StoreFileChanges writes the repository's single file-change partition. An
// empty batch writes nothing.
func (t *Transformer) StoreFileChanges(ctx context.Context, fileChanges []model.FileChange, repositoryID string) (string, error) {
	if len(fileChanges) == 0 {
		return "", nil
	}

	key := FileChangesKey(repositoryID)
	data, err := marshalParquet(fileChanges)
	if err != nil {
		return "", err
	}
	if err := t.store.Put(ctx, key, data, parquetContentType); err != nil {
		return "", err
	}
	t.logger.Info("Stored file changes metadata", "key", key, "rows", len(fileChanges))
	return key, nil
}

// StoreAuthors writes the single global author partition.
func (t *Transformer) StoreAuthors(ctx context.Context, authors []model.Author) (string, error) {
	if len(authors) == 0 {
		return "", nil
	}

	key := AuthorsKey()
	data, err := marshalParquet(authors)
	if err != nil {
		return "", err
	}
	if err := t.store.Put(ctx, key, data, parquetContentType); err != nil {
		return "", err
	}
	t.logger.Info("Stored authors metadata", "key", key, "rows", len(authors))
	return key, nil
}

func marshalParquet[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf)
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("failed to serialize parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshalParquet[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize parquet rows: %w", err)
	}
	return rows, nil
}

// ContentStore persists file blobs and unified diffs at their deterministic
// keys, after a run's metadata has been persisted.
type ContentStore struct {
	store  BlobStore
	logger *slog.Logger
}

// NewContentStore creates a ContentStore on the given blob store.
func NewContentStore(store BlobStore, logger *slog.Logger) *ContentStore {
	return &ContentStore{store: store, logger: logger}
}

// PersistContents uploads every blob and patch a run retrieved. Blob keys
// are content-addressed, so repeats across commits or runs overwrite in
// place.
func (s *ContentStore) PersistContents(ctx context.Context, result *model.CollectionResult) error {
	for hash, content := range result.Blobs {
		if _, err := s.PutBlob(ctx, hash, content); err != nil {
			return err
		}
	}
	for _, patch := range result.Patches {
		if _, err := s.PutPatch(ctx, patch.CommitHash, patch.FilePath, patch.Text); err != nil {
			return err
		}
	}
	s.logger.Info("Stored run contents", "blobs", len(result.Blobs), "patches", len(result.Patches))
	return nil
}

// PutBlob stores file content under its content hash.
func (s *ContentStore) PutBlob(ctx context.Context, contentHash string, content []byte) (string, error) {
	key := BlobKey(contentHash)
	if err := s.store.Put(ctx, key, content, "application/octet-stream"); err != nil {
		return "", err
	}
	return key, nil
}

// GetBlob retrieves file content by its content hash.
func (s *ContentStore) GetBlob(ctx context.Context, contentHash string) ([]byte, error) {
	return s.store.Get(ctx, BlobKey(contentHash))
}

// PutPatch stores the unified diff of one file in one commit.
func (s *ContentStore) PutPatch(ctx context.Context, commitHash, filePath, patch string) (string, error) {
	key := PatchKey(commitHash, filePath)
	if err := s.store.Put(ctx, key, []byte(patch), "text/plain"); err != nil {
		return "", err
	}
	return key, nil
}

// GetPatch retrieves the unified diff of one file in one commit.
func (s *ContentStore) GetPatch(ctx context.Context, commitHash, filePath string) (string, error) {
	data, err := s.store.Get(ctx, PatchKey(commitHash, filePath))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
