package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	custom_errors "github-commit-collector/internal/errors"
)

// WatermarkStore persists, per repository, the committed timestamp of the
// latest commit successfully collected. Writes are last-writer-wins with no
// compare-and-swap; overlapping runs against one repository must be
// serialized operationally.
type WatermarkStore struct {
	store  BlobStore
	logger *slog.Logger
}

// NewWatermarkStore creates a WatermarkStore on the given blob store.
func NewWatermarkStore(store BlobStore, logger *slog.Logger) *WatermarkStore {
	return &WatermarkStore{store: store, logger: logger}
}

// Get returns the repository's watermark, or the zero time when none has
// been written yet — meaning "collect full history".
func (w *WatermarkStore) Get(ctx context.Context, owner, name string) (time.Time, error) {
	data, err := w.store.Get(ctx, WatermarkKey(owner, name))
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	raw := strings.TrimSpace(string(data))
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &custom_errors.StorageError{
			Op:  "parse-watermark",
			Key: WatermarkKey(owner, name),
			Err: fmt.Errorf("invalid timestamp %q: %w", raw, err),
		}
	}
	return ts, nil
}

// Set overwrites the repository's watermark. Callers only invoke it with the
// maximum committed timestamp of a non-empty run batch, so the value never
// regresses under the assumed one-run-at-a-time discipline.
func (w *WatermarkStore) Set(ctx context.Context, owner, name string, ts time.Time) error {
	key := WatermarkKey(owner, name)
	if err := w.store.Put(ctx, key, []byte(ts.Format(time.RFC3339)), "text/plain"); err != nil {
		return err
	}
	w.logger.Info("Updated watermark", "key", key, "timestamp", ts.Format(time.RFC3339))
	return nil
}
