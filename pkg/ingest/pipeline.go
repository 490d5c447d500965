package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seotools/rankmatrix/internal/store"
)

// Summary reports the outcome of ingesting one file.
type Summary struct {
	BatchID     string `json:"batch_id"`
	Processed   int    `json:"processed"`
	Inserted    int    `json:"inserted"`
	Overwritten int    `json:"overwritten"`
	Skipped     int    `json:"skipped"`
}

// Ingest normalizes a delimited export and writes every observation to the
// store. Structural problems (unreadable header, missing mandatory column)
// abort before anything is written; per-row defects only bump the skipped
// count. Re-ingesting the same file moves counts from inserted to
// overwritten and leaves the store state unchanged.
func Ingest(ctx context.Context, logger *zap.Logger, r io.Reader, opts Options, st store.Store) (*Summary, error) {
	if opts.SubjectID == "" {
		return nil, fmt.Errorf("ingest: subject id required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reader, err := NewReader(r, opts)
	if err != nil {
		return nil, err
	}

	sum := &Summary{BatchID: uuid.NewString()}
	for {
		obs, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		existing, err := st.LatestAtOrBefore(ctx, obs.Key(), obs.Date)
		if err != nil {
			return nil, fmt.Errorf("check existing observation: %w", err)
		}
		overwrite := existing != nil && existing.Date.Equal(store.Day(obs.Date))

		if err := st.Put(ctx, obs); err != nil {
			return nil, err
		}

		sum.Processed++
		if overwrite {
			sum.Overwritten++
		} else {
			sum.Inserted++
		}
	}

	sum.Skipped = reader.Skipped()
	if sum.Skipped > 0 {
		logger.Warn("skipped unparsable rows",
			zap.String("batch_id", sum.BatchID),
			zap.String("subject_id", opts.SubjectID),
			zap.Int("skipped", sum.Skipped))
	}
	logger.Info("ingest complete",
		zap.String("batch_id", sum.BatchID),
		zap.String("subject_id", opts.SubjectID),
		zap.Int("processed", sum.Processed),
		zap.Int("overwritten", sum.Overwritten))

	return sum, nil
}
