// Package dispatcher implements the batched delivery engine: it splits a
// dispatch job into gateway-sized batches, sends them with bounded
// concurrency and folds the per-batch results into a single tally.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-order-notification-service/internal/metrics"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const defaultMaxConcurrency = 10

// Config bounds the outbound traffic of one Dispatch call.
type Config struct {
	// BatchSize is the maximum number of messages per gateway call.
	BatchSize int
	// MaxConcurrency is the maximum number of gateway calls in flight.
	MaxConcurrency int
	// BatchesPerSecond rate-limits gateway calls. Zero disables the limit.
	BatchesPerSecond float64
}

type Dispatcher struct {
	gateway dispatch.Gateway
	cfg     Config
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Dispatcher. Out-of-range settings fall back to the gateway
// limit (500 per batch) and 10 concurrent calls.
func New(gateway dispatch.Gateway, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 || cfg.BatchSize > dispatch.DefaultBatchSize {
		cfg.BatchSize = dispatch.DefaultBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if m == nil {
		m = metrics.New(nil)
	}

	var limiter *rate.Limiter
	if cfg.BatchesPerSecond > 0 {
		burst := int(cfg.BatchesPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), burst)
	}

	return &Dispatcher{
		gateway: gateway,
		cfg:     cfg,
		limiter: limiter,
		metrics: m,
		logger:  logger.With("component", "BatchDispatcher"),
	}
}

// BatchSize returns the effective batch size.
func (d *Dispatcher) BatchSize() int { return d.cfg.BatchSize }

// Dispatch sends every addressed target of job and returns the aggregated
// tally. It never fails as a whole: gateway errors are folded into the
// failure count, and batches that could not start before ctx was done are
// counted as cancelled failures.
func (d *Dispatcher) Dispatch(ctx context.Context, job dispatch.DispatchJob) dispatch.BatchResult {
	deliverable, skipped := Partition(job.Targets)
	chunks := dispatch.Chunk(deliverable, d.cfg.BatchSize)

	// Each chunk writes only its own slot, so folding in index order keeps
	// the result independent of completion order.
	results := make([]dispatch.BatchResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = d.sendChunk(ctx, i, chunk, job.PayloadFor)
			return nil
		})
	}
	_ = g.Wait()

	total := dispatch.BatchResult{SkippedCount: skipped}
	for _, r := range results {
		total = total.Merge(r)
	}

	d.observe(total)
	d.logger.Debug("Dispatch complete",
		"targets", len(job.Targets),
		"batches", total.Batches,
		"success", total.SuccessCount,
		"failed", total.FailureCount,
		"skipped", total.SkippedCount,
	)
	return total
}

func (d *Dispatcher) sendChunk(ctx context.Context, idx int, chunk []dispatch.DeliveryTarget, payloadFor func(string) dispatch.NotificationPayload) dispatch.BatchResult {
	if ctx.Err() != nil {
		return failAll(chunk, dispatch.KindCancelled)
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return failAll(chunk, dispatch.KindCancelled)
		}
	}

	msgs := make([]dispatch.Message, len(chunk))
	for i, t := range chunk {
		msgs[i] = dispatch.Message{
			RecipientID: t.RecipientID,
			Address:     t.Address,
			Payload:     payloadFor(t.RecipientID),
		}
	}

	d.metrics.BatchesInFlight.Inc()
	start := time.Now()
	defer func() {
		d.metrics.BatchesInFlight.Dec()
		d.metrics.BatchLatency.Observe(time.Since(start).Seconds())
	}()

	if len(msgs) == 1 {
		err := d.gateway.SendOne(ctx, msgs[0])
		if err == nil {
			d.metrics.BatchesSent.WithLabelValues("ok").Inc()
			return dispatch.BatchResult{SuccessCount: 1, Batches: 1}
		}
		kind := dispatch.KindOf(err)
		if kind == dispatch.KindGatewayUnavailable {
			d.metrics.BatchesSent.WithLabelValues("error").Inc()
		} else {
			d.metrics.BatchesSent.WithLabelValues("ok").Inc()
		}
		d.logger.Debug("Single send failed", "recipient_id", chunk[0].RecipientID, "kind", kind, "err", err)
		return dispatch.BatchResult{
			FailureCount: 1,
			Batches:      1,
			Errors:       []dispatch.TargetError{{RecipientID: chunk[0].RecipientID, Address: chunk[0].Address, Kind: kind}},
		}
	}

	outcomes, err := d.gateway.SendBatch(ctx, msgs)
	if err != nil {
		d.metrics.BatchesSent.WithLabelValues("error").Inc()
		d.logger.Warn("Gateway rejected whole batch", "batch", idx, "size", len(chunk), "err", err)
		return failAll(chunk, dispatch.KindGatewayUnavailable)
	}
	d.metrics.BatchesSent.WithLabelValues("ok").Inc()

	res := dispatch.BatchResult{Batches: 1}
	for i, t := range chunk {
		if i < len(outcomes) && outcomes[i].Success {
			res.SuccessCount++
			continue
		}
		kind := dispatch.KindUnknown
		if i < len(outcomes) && outcomes[i].Kind != "" {
			kind = outcomes[i].Kind
		}
		res.FailureCount++
		res.Errors = append(res.Errors, dispatch.TargetError{RecipientID: t.RecipientID, Address: t.Address, Kind: kind})
	}
	return res
}

func (d *Dispatcher) observe(r dispatch.BatchResult) {
	d.metrics.TargetsSent.Add(float64(r.SuccessCount))
	d.metrics.TargetsSkipped.Add(float64(r.SkippedCount))
	for _, e := range r.Errors {
		d.metrics.TargetsFailed.WithLabelValues(string(e.Kind)).Inc()
	}
}

// failAll marks every target of chunk as failed with kind. The chunk still
// counts as a batch so that batch totals stay ceil(N/B).
func failAll(chunk []dispatch.DeliveryTarget, kind dispatch.ErrorKind) dispatch.BatchResult {
	res := dispatch.BatchResult{FailureCount: len(chunk), Batches: 1}
	res.Errors = make([]dispatch.TargetError, len(chunk))
	for i, t := range chunk {
		res.Errors[i] = dispatch.TargetError{RecipientID: t.RecipientID, Address: t.Address, Kind: kind}
	}
	return res
}

// Partition splits targets into those with an address, in order, and the
// number without one.
func Partition(targets []dispatch.DeliveryTarget) ([]dispatch.DeliveryTarget, int) {
	deliverable := make([]dispatch.DeliveryTarget, 0, len(targets))
	for _, t := range targets {
		if t.HasAddress {
			deliverable = append(deliverable, t)
		}
	}
	return deliverable, len(targets) - len(deliverable)
}
