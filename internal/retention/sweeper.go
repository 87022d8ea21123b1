// Package retention deletes notification history older than a fixed horizon.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-order-notification-service/internal/metrics"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const (
	DefaultHorizonDays = 30
	// DefaultDeleteBatchSize is Firestore's per-commit write limit.
	DefaultDeleteBatchSize = 500
)

type Config struct {
	HorizonDays     int
	DeleteBatchSize int
}

type Sweeper struct {
	store   dispatch.RecordStore
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(store dispatch.RecordStore, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.DeleteBatchSize <= 0 {
		cfg.DeleteBatchSize = DefaultDeleteBatchSize
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Sweeper{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "RetentionSweeper"),
	}
}

// Cutoff returns the creation time before which records are deleted.
func (s *Sweeper) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -s.cfg.HorizonDays)
}

// Sweep deletes every record created before now minus the horizon and
// returns how many were deleted. A failed delete batch is logged and the
// sweep moves on; the error returned only reports that the sweep was
// partial, so the next scheduled run can pick up the rest.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := s.Cutoff(now)

	refs, err := s.store.QueryOlderThan(ctx, cutoff)
	if err != nil {
		s.metrics.SweepErrors.Inc()
		s.logger.Error("Failed to query expired notifications", "cutoff", cutoff, "err", err)
		return 0, fmt.Errorf("failed to query notifications older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if len(refs) == 0 {
		s.logger.Info("No old notifications to delete", "cutoff", cutoff)
		return 0, nil
	}

	deleted, failedBatches := 0, 0
	var lastErr error
	for i, batch := range dispatch.Chunk(refs, s.cfg.DeleteBatchSize) {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if err := s.store.DeleteBatch(ctx, batch); err != nil {
			failedBatches++
			lastErr = err
			s.metrics.SweepErrors.Inc()
			s.logger.Error("Failed to delete notification batch", "batch", i, "size", len(batch), "err", err)
			continue
		}
		deleted += len(batch)
	}
	s.metrics.RecordsSwept.Add(float64(deleted))

	s.logger.Info("Deleted old notifications", "deleted", deleted, "matched", len(refs), "cutoff", cutoff)
	if lastErr != nil {
		return deleted, fmt.Errorf("sweep incomplete (%d failed batches): %w", failedBatches, lastErr)
	}
	return deleted, nil
}
