package storage

import (
	"context"
	"errors"
	"strings"

	"github-commit-collector/internal/model"
)

// Query reads partitions back for ad-hoc analysis: list a prefix, decode
// each columnar object, concatenate the rows. Missing partitions are an
// empty result, not an error.
type Query struct {
	store BlobStore
}

// NewQuery creates a Query over the given blob store.
func NewQuery(store BlobStore) *Query {
	return &Query{store: store}
}

// CommitsByRepository returns every commit row stored under the
// repository's partition prefix, across all year/month partitions.
func (q *Query) CommitsByRepository(ctx context.Context, repositoryID string) ([]model.Commit, error) {
	keys, err := q.store.List(ctx, CommitsPrefix(repositoryID))
	if err != nil {
		return nil, err
	}

	var commits []model.Commit
	for _, key := range keys {
		if !strings.HasSuffix(key, ".parquet") {
			continue
		}
		data, err := q.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		rows, err := unmarshalParquet[model.Commit](data)
		if err != nil {
			return nil, err
		}
		commits = append(commits, rows...)
	}
	return commits, nil
}

// FileChangesByRepository returns the repository's file-change rows, or an
// empty slice when the partition does not exist yet.
func (q *Query) FileChangesByRepository(ctx context.Context, repositoryID string) ([]model.FileChange, error) {
	data, err := q.store.Get(ctx, FileChangesKey(repositoryID))
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return unmarshalParquet[model.FileChange](data)
}

// FileChangesByType filters a repository's file changes by inferred file
// extension.
func (q *Query) FileChangesByType(ctx context.Context, repositoryID, fileType string) ([]model.FileChange, error) {
	all, err := q.FileChangesByRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	var filtered []model.FileChange
	for _, fc := range all {
		if fc.FileType == fileType {
			filtered = append(filtered, fc)
		}
	}
	return filtered, nil
}

// Repository returns the stored repository snapshot, or nil when the
// repository was never collected.
func (q *Query) Repository(ctx context.Context, repositoryID string) (*model.Repository, error) {
	data, err := q.store.Get(ctx, RepositoryKey(repositoryID))
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := unmarshalParquet[model.Repository](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
