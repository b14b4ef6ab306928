package storage

import (
	"fmt"
	"strings"
)

const (
	repositoriesPrefix = "repositories_metadata"
	commitsPrefix      = "commits_metadata"
	fileChangesPrefix  = "file_changes_metadata"
	authorsKey         = "authors_metadata/authors.parquet"
	blobsPrefix        = "file_blobs"
	patchesPrefix      = "file_patches"
	statePrefix        = "state"
)

var (
	idEscaper   = strings.NewReplacer("/", "_", ":", "_")
	pathEscaper = strings.NewReplacer("/", "_", "\\", "_")
)

// EscapeID makes a repository id usable as a single key path segment.
func EscapeID(id string) string { return idEscaper.Replace(id) }

// EscapePath makes a file path usable as a single key path segment.
func EscapePath(path string) string { return pathEscaper.Replace(path) }

// BlobKey is the content-addressed key for file content. The same bytes
// always land on the same key, so re-collection overwrites instead of
// duplicating.
func BlobKey(contentHash string) string {
	return fmt.Sprintf("%s/%s", blobsPrefix, contentHash)
}

// PatchKey is the key for the unified diff of one file in one commit.
func PatchKey(commitHash, filePath string) string {
	return fmt.Sprintf("%s/%s/%s.patch", patchesPrefix, commitHash, EscapePath(filePath))
}

// RepositoryKey is the key of a repository's metadata partition.
func RepositoryKey(repositoryID string) string {
	return fmt.Sprintf("%s/repository_id=%s/repository.parquet", repositoriesPrefix, EscapeID(repositoryID))
}

// CommitsKey is the key of one (repository, year, month) commit partition.
func CommitsKey(repositoryID string, year, month int) string {
	return fmt.Sprintf("%s/repository_id=%s/year=%d/month=%02d/commits.parquet",
		commitsPrefix, EscapeID(repositoryID), year, month)
}

// CommitsPrefix is the listing prefix covering all commit partitions of a
// repository.
func CommitsPrefix(repositoryID string) string {
	return fmt.Sprintf("%s/repository_id=%s/", commitsPrefix, EscapeID(repositoryID))
}

// FileChangesKey is the key of a repository's file-change partition.
func FileChangesKey(repositoryID string) string {
	return fmt.Sprintf("%s/repository_id=%s/file_changes.parquet", fileChangesPrefix, EscapeID(repositoryID))
}

// AuthorsKey is the single global author partition: authors are not tied to
// one repository in this model.
func AuthorsKey() string { return authorsKey }

// WatermarkKey is the key of a repository's incremental-collection state.
func WatermarkKey(owner, name string) string {
	return fmt.Sprintf("%s/%s_%s/last_timestamp.txt", statePrefix, owner, name)
}
