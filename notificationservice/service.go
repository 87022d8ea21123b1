// Package notificationservice assembles the order notification service:
// the Pub/Sub event pipeline, the HTTP API, the retention schedule and the
// delayed task runner, all sharing one set of handlers.
package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-order-notification-service/internal/api"
	"github.com/tinywideclouds/go-order-notification-service/internal/dispatcher"
	"github.com/tinywideclouds/go-order-notification-service/internal/events"
	"github.com/tinywideclouds/go-order-notification-service/internal/history"
	"github.com/tinywideclouds/go-order-notification-service/internal/metrics"
	"github.com/tinywideclouds/go-order-notification-service/internal/pipeline"
	"github.com/tinywideclouds/go-order-notification-service/internal/resolver"
	"github.com/tinywideclouds/go-order-notification-service/internal/retention"
	"github.com/tinywideclouds/go-order-notification-service/internal/tasks"
	"github.com/tinywideclouds/go-order-notification-service/notificationservice/config"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const sweepJobName = "retention-sweep"

// Dependencies are the external clients, constructed by main.
type Dependencies struct {
	Consumer       messagepipeline.MessageConsumer
	Gateway        dispatch.Gateway
	Addresses      dispatch.AddressStore
	Records        dispatch.RecordStore
	AuthMiddleware func(http.Handler) http.Handler
	// Registry receives the service metrics. Nil creates a private registry.
	Registry *prometheus.Registry
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.Event]
	scheduler       *tasks.Scheduler
	runner          *tasks.Runner
	handlers        *events.Handlers
	logger          *slog.Logger
}

// New assembles the service.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Wrapper, error) {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	// 1. Core components
	runner := tasks.NewRunner(time.Minute, logger)
	handlers := events.New(events.Deps{
		Resolver: resolver.New(deps.Addresses, logger),
		Dispatcher: dispatcher.New(deps.Gateway, dispatcher.Config{
			BatchSize:        cfg.Dispatch.BatchSize,
			MaxConcurrency:   cfg.Dispatch.MaxConcurrency,
			BatchesPerSecond: cfg.Dispatch.BatchesPerSecond,
		}, m, logger),
		Recorder: history.New(deps.Records, m, logger),
		Sweeper: retention.New(deps.Records, retention.Config{
			HorizonDays:     cfg.Retention.HorizonDays,
			DeleteBatchSize: cfg.Retention.DeleteBatchSize,
		}, m, logger),
		Tasks: runner,
	}, logger, events.WithWelcomeDelay(cfg.WelcomeDelay))

	// 2. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		deps.Consumer,
		pipeline.EventTransformer,
		pipeline.NewProcessor(handlers, logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 3. Retention schedule
	loc, err := time.LoadLocation(cfg.Retention.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid retention timezone: %w", err)
	}
	scheduler := tasks.NewScheduler(loc, logger)
	err = scheduler.Add(sweepJobName, cfg.Retention.Schedule, cfg.Retention.RunTimeout, func(ctx context.Context) error {
		_, err := handlers.Sweep(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 4. HTTP API
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)
	registerRoutes(baseServer.Mux(), cfg, deps, handlers, reg, logger)

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		scheduler:       scheduler,
		runner:          runner,
		handlers:        handlers,
		logger:          logger,
	}, nil
}

type router interface {
	Handle(pattern string, handler http.Handler)
}

func registerRoutes(
	mux router,
	cfg *config.Config,
	deps Dependencies,
	handlers *events.Handlers,
	reg *prometheus.Registry,
	logger *slog.Logger,
) {
	cors := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	auth := deps.AuthMiddleware
	protect := func(h http.HandlerFunc) http.Handler { return cors(auth(h)) }
	preflight := cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tokenAPI := api.NewTokenAPI(deps.Addresses, logger)
	campaignAPI := api.NewCampaignAPI(handlers, cfg.AdminURNs, logger)

	mux.Handle("OPTIONS /api/v1/", preflight)
	mux.Handle("POST /api/v1/campaigns", protect(campaignAPI.SendCampaign))
	mux.Handle("POST /api/v1/register/fcm", protect(tokenAPI.RegisterFCM))
	mux.Handle("POST /api/v1/unregister/fcm", protect(tokenAPI.UnregisterFCM))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

// Handlers exposes the event handlers, mainly for tests and tooling.
func (w *Wrapper) Handlers() *events.Handlers { return w.handlers }

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.scheduler.Start()
	w.logger.Info("Retention schedule started", "next_run", w.scheduler.Next())
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.scheduler.Stop(ctx); err != nil {
		w.logger.Error("Scheduler shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.runner.Shutdown(ctx); err != nil {
		w.logger.Error("Delayed task shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
