// Package dump is the interchange seam between collection and persistence:
// each run is written as four JSON documents that the persistence step
// consumes as its sole metadata input. The documents are plain files so a
// run's output can be inspected before it is transformed.
package dump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github-commit-collector/internal/model"
)

const (
	repositoryFile  = "repository.json"
	commitsFile     = "commits.json"
	fileChangesFile = "file_changes.json"
	authorsFile     = "authors.json"
)

// Save writes the run's four JSON documents into dir, creating it if needed.
func Save(dir string, result *model.CollectionResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory %s: %w", dir, err)
	}

	if err := writeJSON(filepath.Join(dir, repositoryFile), result.Repository); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, commitsFile), result.Commits); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, fileChangesFile), result.FileChanges); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, authorsFile), result.Authors)
}

// Load reads the four JSON documents back. Blob contents and patches do not
// travel through the seam.
func Load(dir string) (*model.CollectionResult, error) {
	result := &model.CollectionResult{}

	if err := readJSON(filepath.Join(dir, repositoryFile), &result.Repository); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, commitsFile), &result.Commits); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, fileChangesFile), &result.FileChanges); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, authorsFile), &result.Authors); err != nil {
		return nil, err
	}
	return result, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
