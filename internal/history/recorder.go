// Package history persists one notification record per recipient of a
// dispatch, independent of whether the push reached the device.
package history

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-order-notification-service/internal/metrics"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const defaultWriteConcurrency = 16

// Meta describes what a record is about.
type Meta struct {
	Category       dispatch.Category
	RelatedOrderID string
	OrderStatus    string
	Extra          map[string]string
}

type Recorder struct {
	store       dispatch.RecordStore
	concurrency int
	now         func() time.Time
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithConcurrency bounds the parallel inserts of RecordAll.
func WithConcurrency(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func New(store dispatch.RecordStore, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Recorder {
	if m == nil {
		m = metrics.New(nil)
	}
	r := &Recorder{
		store:       store,
		concurrency: defaultWriteConcurrency,
		now:         time.Now,
		metrics:     m,
		logger:      logger.With("component", "HistoryRecorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes one record for target and returns its id. Store failures are
// logged and swallowed, returning an empty id: retrying a dispatch because
// history failed would send the push twice.
func (r *Recorder) Record(ctx context.Context, target dispatch.DeliveryTarget, payload dispatch.NotificationPayload, meta Meta) string {
	rec := dispatch.NotificationRecord{
		ID:             uuid.NewString(),
		RecipientID:    target.RecipientID,
		Title:          payload.Title,
		Body:           payload.Body,
		Category:       meta.Category,
		RelatedOrderID: meta.RelatedOrderID,
		OrderStatus:    meta.OrderStatus,
		CreatedAt:      r.now().UTC(),
		IsRead:         false,
		Extra:          maps.Clone(meta.Extra),
	}

	id, err := r.store.Insert(ctx, rec)
	if err != nil {
		r.metrics.RecordsFailed.Inc()
		r.logger.Error("Failed to persist notification record",
			"recipient_id", target.RecipientID,
			"category", meta.Category,
			"err", err,
		)
		return ""
	}
	r.metrics.RecordsWritten.Inc()
	return id
}

// RecordAll writes one record per target of job, concurrently. The returned
// ids are in target order; failed writes leave an empty id.
func (r *Recorder) RecordAll(ctx context.Context, job dispatch.DispatchJob, meta Meta) []string {
	ids := make([]string, len(job.Targets))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, t := range job.Targets {
		g.Go(func() error {
			ids[i] = r.Record(ctx, t, job.PayloadFor(t.RecipientID), meta)
			return nil
		})
	}
	_ = g.Wait()
	return ids
}
