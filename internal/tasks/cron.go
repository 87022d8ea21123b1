package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named jobs on standard five-field cron schedules.
type Scheduler struct {
	c      *cron.Cron
	parser cron.Parser
	logger *slog.Logger
}

// NewScheduler creates a Scheduler evaluating schedules in loc. A nil loc
// means UTC.
func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		c:      cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		parser: parser,
		logger: logger.With("component", "CronScheduler"),
	}
}

// Add registers job under spec. Each run gets a context bounded by timeout
// when timeout > 0. Overlapping runs of the same job are skipped.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.runJob(name, timeout, job)
	}))
	if _, err := s.c.AddJob(spec, wrapped); err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}
	s.logger.Info("Schedule registered", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) runJob(name string, timeout time.Duration, job func(ctx context.Context) error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("Scheduled job failed", "job", name, "duration", time.Since(start), "err", err)
		return
	}
	s.logger.Info("Scheduled job finished", "job", name, "duration", time.Since(start))
}

// Next returns the next activation of the earliest scheduled job.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.c.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
