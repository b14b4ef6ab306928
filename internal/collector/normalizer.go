package collector

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/google/go-github/v62/github"

	custom_errors "github-commit-collector/internal/errors"
	"github-commit-collector/internal/model"
	"github-commit-collector/internal/storage"
)

// binarySniffLen bounds the zero-byte scan used for binary detection.
const binarySniffLen = 1024

// Normalizer maps raw API payloads onto the entity records of one collection
// run. It is scoped to a single run: the author map must not survive between
// repository runs.
type Normalizer struct {
	authors     map[string]*model.Author
	authorOrder []string
}

// NewNormalizer creates an empty per-run Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{authors: make(map[string]*model.Author)}
}

// ResolveAuthor deduplicates an author payload by identity key: email when
// present, display name otherwise. The first occurrence of a key is retained
// and the same record is returned for every later occurrence.
func (n *Normalizer) ResolveAuthor(raw *github.CommitAuthor) *model.Author {
	email := raw.GetEmail()
	name := raw.GetName()

	key := email
	if key == "" {
		key = name
	}

	if author, ok := n.authors[key]; ok {
		return author
	}

	author := &model.Author{
		AuthorID: key,
		Name:     name,
		Username: "", // not available in commit author payloads
		Email:    email,
	}
	n.authors[key] = author
	n.authorOrder = append(n.authorOrder, key)
	return author
}

// Authors returns the run's deduplicated authors in first-seen order.
func (n *Normalizer) Authors() []model.Author {
	out := make([]model.Author, 0, len(n.authorOrder))
	for _, key := range n.authorOrder {
		out = append(out, *n.authors[key])
	}
	return out
}

// Repository maps a repository-detail payload. The canonical URL becomes the
// repository id.
func (n *Normalizer) Repository(raw *github.Repository) (*model.Repository, error) {
	if raw.GetHTMLURL() == "" {
		return nil, &custom_errors.MalformedInputError{Input: raw.GetFullName(), Reason: "repository payload missing html_url"}
	}

	defaultBranch := raw.GetDefaultBranch()
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	return &model.Repository{
		RepositoryID:    raw.GetHTMLURL(),
		Name:            raw.GetName(),
		Owner:           raw.GetOwner().GetLogin(),
		Description:     raw.GetDescription(),
		PrimaryLanguage: raw.GetLanguage(),
		CloneURL:        raw.GetCloneURL(),
		CreatedAt:       raw.GetCreatedAt().Time,
		LastUpdatedAt:   raw.GetUpdatedAt().Time,
		Metadata: model.RepositoryMetadata{
			Stars:         raw.GetStargazersCount(),
			Forks:         raw.GetForksCount(),
			Size:          raw.GetSize(),
			DefaultBranch: defaultBranch,
			Topics:        raw.Topics,
		},
	}, nil
}

// Commit maps a commit-detail payload, resolving both author and committer
// through the run's author map. Statistics default to zero when the API
// omits them (it does for very large diffs); the changed-file count is the
// length of the files list, keeping it consistent with the FileChange
// records produced from the same payload.
func (n *Normalizer) Commit(detail *github.RepositoryCommit, repositoryID string) (*model.Commit, error) {
	sha := detail.GetSHA()
	commit := detail.GetCommit()
	if commit == nil {
		return nil, &custom_errors.MalformedInputError{Input: sha, Reason: "commit payload missing commit object"}
	}
	if commit.Author == nil || commit.Committer == nil {
		return nil, &custom_errors.MalformedInputError{Input: sha, Reason: "commit payload missing author or committer"}
	}
	if commit.GetTree().GetSHA() == "" {
		return nil, &custom_errors.MalformedInputError{Input: sha, Reason: "commit payload missing tree sha"}
	}

	author := n.ResolveAuthor(commit.Author)
	committer := n.ResolveAuthor(commit.Committer)

	parents := make([]string, 0, len(detail.Parents))
	for _, parent := range detail.Parents {
		parents = append(parents, parent.GetSHA())
	}

	return &model.Commit{
		CommitHash:        sha,
		RepositoryID:      repositoryID,
		AuthorID:          author.AuthorID,
		CommitterID:       committer.AuthorID,
		Message:           commit.GetMessage(),
		AuthoredAt:        commit.Author.GetDate().Time,
		CommittedAt:       commit.Committer.GetDate().Time,
		ParentHashes:      parents,
		TreeHash:          commit.GetTree().GetSHA(),
		StatsLinesAdded:   detail.GetStats().GetAdditions(),
		StatsLinesDeleted: detail.GetStats().GetDeletions(),
		StatsFilesChanged: len(detail.Files),
	}, nil
}

// ChangeKind resolves an API file status to a change kind. Unrecognized
// statuses (e.g. "changed", "copied") default to MODIFIED.
func ChangeKind(status string) model.ChangeType {
	switch status {
	case "added":
		return model.ChangeAdded
	case "modified":
		return model.ChangeModified
	case "removed":
		return model.ChangeDeleted
	case "renamed":
		return model.ChangeRenamed
	default:
		return model.ChangeModified
	}
}

// FileChange maps one file entry of a commit. The before/after bytes are
// whatever the engine could retrieve for each side; absent bytes mean absent
// hash and absent storage key, never a placeholder.
func (n *Normalizer) FileChange(commitSHA string, file *github.CommitFile, kind model.ChangeType, before, after []byte) *model.FileChange {
	path := file.GetFilename()
	patchKey := storage.PatchKey(commitSHA, path)

	fc := &model.FileChange{
		FileChangeID: commitSHA + "_" + strings.ReplaceAll(path, "/", "_"),
		CommitHash:   commitSHA,
		FilePath:     path,
		ChangeType:   kind,
		OldFilePath:  file.PreviousFilename,
		LinesAdded:   file.GetAdditions(),
		LinesDeleted: file.GetDeletions(),
		PatchKey:     &patchKey,
		FileType:     fileType(path),
		IsBinary:     isBinary(firstNonEmpty(after, before)),
	}

	if len(before) > 0 {
		hash := contentHash(before)
		key := storage.BlobKey(hash)
		fc.BlobHashBefore = &hash
		fc.ContentBeforeKey = &key
	}
	if len(after) > 0 {
		hash := contentHash(after)
		key := storage.BlobKey(hash)
		fc.BlobHashAfter = &hash
		fc.ContentAfterKey = &key
	}

	return fc
}

// contentHash is the SHA-1 digest of file bytes, hex encoded. It doubles as
// the content-addressed blob key suffix.
func contentHash(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

// fileType is the lower-cased substring after the last dot, or "unknown"
// for extensionless paths.
func fileType(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return strings.ToLower(path[idx+1:])
	}
	return "unknown"
}

// isBinary flags content holding a zero byte within its first 1024 bytes.
// Unknown content is treated as non-binary.
func isBinary(content []byte) bool {
	if content == nil {
		return false
	}
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

func firstNonEmpty(a, b []byte) []byte {
	if len(a) > 0 {
		return a
	}
	return b
}
