package model

import "time"

// ChangeType classifies how a commit touched a file.
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeModified ChangeType = "MODIFIED"
	ChangeDeleted  ChangeType = "DELETED"
	ChangeRenamed  ChangeType = "RENAMED"
)

// Repository is one snapshot of a repository's metadata, identified by its
// canonical URL. A later collection run overwrites the stored record whole.
type Repository struct {
	RepositoryID    string             `json:"repository_id" parquet:"repository_id"`
	Name            string             `json:"name" parquet:"name"`
	Owner           string             `json:"owner" parquet:"owner"`
	Description     string             `json:"description" parquet:"description"`
	PrimaryLanguage string             `json:"primary_language" parquet:"primary_language"`
	CloneURL        string             `json:"clone_url" parquet:"clone_url"`
	CreatedAt       time.Time          `json:"created_at" parquet:"created_at,timestamp"`
	LastUpdatedAt   time.Time          `json:"last_updated_at" parquet:"last_updated_at,timestamp"`
	Metadata        RepositoryMetadata `json:"metadata" parquet:"metadata"`
}

// RepositoryMetadata carries the free-form repository attributes that are
// recorded but never queried relationally.
type RepositoryMetadata struct {
	Stars         int      `json:"stars" parquet:"stars"`
	Forks         int      `json:"forks" parquet:"forks"`
	Size          int      `json:"size" parquet:"size"`
	DefaultBranch string   `json:"default_branch" parquet:"default_branch"`
	Topics        []string `json:"topics" parquet:"topics,list"`
}

// Author is a commit author or committer, keyed by email when present and
// display name otherwise. Username is empty: commit payloads don't carry it.
type Author struct {
	AuthorID string `json:"author_id" parquet:"author_id"`
	Name     string `json:"name" parquet:"name"`
	Username string `json:"username" parquet:"username"`
	Email    string `json:"email" parquet:"email"`
}

// Commit is one commit's metadata. Created exactly once when its detail is
// fetched; never updated.
type Commit struct {
	CommitHash        string    `json:"commit_hash" parquet:"commit_hash"`
	RepositoryID      string    `json:"repository_id" parquet:"repository_id"`
	AuthorID          string    `json:"author_id" parquet:"author_id"`
	CommitterID       string    `json:"committer_id" parquet:"committer_id"`
	Message           string    `json:"message" parquet:"message"`
	AuthoredAt        time.Time `json:"authored_timestamp" parquet:"authored_timestamp,timestamp"`
	CommittedAt       time.Time `json:"committed_timestamp" parquet:"committed_timestamp,timestamp"`
	ParentHashes      []string  `json:"parent_hashes" parquet:"parent_hashes,list"`
	TreeHash          string    `json:"tree_hash" parquet:"tree_hash"`
	StatsLinesAdded   int       `json:"stats_lines_added" parquet:"stats_lines_added"`
	StatsLinesDeleted int       `json:"stats_lines_deleted" parquet:"stats_lines_deleted"`
	StatsFilesChanged int       `json:"stats_files_changed" parquet:"stats_files_changed"`
}

// FileChange is one file touched by one commit. Hash and key fields are nil
// when the corresponding side of the change has no retrievable content.
type FileChange struct {
	FileChangeID     string     `json:"file_change_id" parquet:"file_change_id"`
	CommitHash       string     `json:"commit_hash" parquet:"commit_hash"`
	FilePath         string     `json:"file_path" parquet:"file_path"`
	ChangeType       ChangeType `json:"change_type" parquet:"change_type"`
	OldFilePath      *string    `json:"old_file_path" parquet:"old_file_path,optional"`
	LinesAdded       int        `json:"lines_added" parquet:"lines_added"`
	LinesDeleted     int        `json:"lines_deleted" parquet:"lines_deleted"`
	BlobHashBefore   *string    `json:"blob_hash_before" parquet:"blob_hash_before,optional"`
	BlobHashAfter    *string    `json:"blob_hash_after" parquet:"blob_hash_after,optional"`
	ContentBeforeKey *string    `json:"content_before_key" parquet:"content_before_key,optional"`
	ContentAfterKey  *string    `json:"content_after_key" parquet:"content_after_key,optional"`
	PatchKey         *string    `json:"patch_key" parquet:"patch_key,optional"`
	FileType         string     `json:"file_type" parquet:"file_type"`
	IsBinary         bool       `json:"is_binary" parquet:"is_binary"`
}

// Patch is the unified diff text for one file of one commit, held in memory
// until the content-upload step stores it.
type Patch struct {
	CommitHash string
	FilePath   string
	Text       string
}

// CollectionResult is everything one repository run produced. The four JSON
// documents written by the dump package cover Repository, Commits,
// FileChanges and Authors; blob contents and patches travel alongside in
// memory only.
type CollectionResult struct {
	Repository  *Repository  `json:"repository"`
	Commits     []Commit     `json:"commits"`
	FileChanges []FileChange `json:"file_changes"`
	Authors     []Author     `json:"authors"`

	Blobs   map[string][]byte `json:"-"`
	Patches []Patch           `json:"-"`
}

// LatestCommitTimestamp returns the maximum committed timestamp in the batch,
// or the zero time when the batch is empty. Used to advance the watermark.
func (r *CollectionResult) LatestCommitTimestamp() time.Time {
	var latest time.Time
	for _, c := range r.Commits {
		if c.CommittedAt.After(latest) {
			latest = c.CommittedAt
		}
	}
	return latest
}
