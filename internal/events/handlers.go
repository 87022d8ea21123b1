// Package events holds the business triggers of the service: an order
// status change, an admin campaign, a new user and the retention sweep.
// Each handler composes, resolves, dispatches and records, and is invoked
// by a transport (Pub/Sub pipeline, HTTP API or cron).
package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tinywideclouds/go-order-notification-service/internal/composer"
	"github.com/tinywideclouds/go-order-notification-service/internal/dispatcher"
	"github.com/tinywideclouds/go-order-notification-service/internal/history"
	"github.com/tinywideclouds/go-order-notification-service/internal/resolver"
	"github.com/tinywideclouds/go-order-notification-service/internal/retention"
	"github.com/tinywideclouds/go-order-notification-service/internal/tasks"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// DefaultWelcomeDelay gives client-side profile setup time to finish before
// the welcome notification is sent.
const DefaultWelcomeDelay = 5 * time.Second

// followUpTimeout bounds history writes and address cleanup, which run after
// the dispatch even if the caller's context is already done.
const followUpTimeout = 30 * time.Second

// OrderState is the slice of an order document the handlers care about.
type OrderState struct {
	OrderID string  `json:"orderId"`
	UserID  string  `json:"userId"`
	Status  string  `json:"status"`
	Total   float64 `json:"total"`
}

// CampaignRequest is an admin broadcast to every registered device.
type CampaignRequest struct {
	Title              string
	Body               string
	ImageURL           string
	CallerIsPrivileged bool
}

// CampaignResult summarises a campaign for the caller.
type CampaignResult struct {
	Success     bool   `json:"success"`
	TotalSent   int    `json:"totalSent"`
	TotalFailed int    `json:"totalFailed"`
	Message     string `json:"message"`
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Resolver   *resolver.Resolver
	Dispatcher *dispatcher.Dispatcher
	Recorder   *history.Recorder
	Sweeper    *retention.Sweeper
	Tasks      *tasks.Runner
}

type Option func(*Handlers)

// WithWelcomeDelay overrides DefaultWelcomeDelay.
func WithWelcomeDelay(d time.Duration) Option {
	return func(h *Handlers) { h.welcomeDelay = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) { h.now = now }
}

type Handlers struct {
	deps         Deps
	welcomeDelay time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func New(deps Deps, logger *slog.Logger, opts ...Option) *Handlers {
	h := &Handlers{
		deps:         deps,
		welcomeDelay: DefaultWelcomeDelay,
		now:          time.Now,
		logger:       logger.With("component", "EventHandlers"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OrderUpdated notifies the order's owner when its status changed. Nothing
// happens when the status is unchanged.
func (h *Handlers) OrderUpdated(ctx context.Context, prev, next OrderState) dispatch.BatchResult {
	if prev.Status == next.Status {
		return dispatch.BatchResult{}
	}
	log := h.logger.With("order_id", next.OrderID, "user_id", next.UserID, "status", next.Status)
	if next.UserID == "" {
		log.Warn("Order has no user, skipping notification")
		return dispatch.BatchResult{}
	}

	payload := composer.OrderStatus(next.Status, next.OrderID, next.Total)
	target := h.deps.Resolver.Resolve(ctx, next.UserID)
	job := dispatch.DispatchJob{
		Targets:    []dispatch.DeliveryTarget{target},
		PayloadFor: dispatch.SharedPayload(payload),
	}

	result := h.deps.Dispatcher.Dispatch(ctx, job)

	fctx, cancel := followUp(ctx)
	defer cancel()
	h.deps.Recorder.RecordAll(fctx, job, history.Meta{
		Category:       dispatch.CategoryOrderStatus,
		RelatedOrderID: next.OrderID,
		OrderStatus:    strings.ToLower(next.Status),
		Extra:          map[string]string{"orderTotal": composer.FormatTotal(next.Total)},
	})
	h.deps.Resolver.Forget(fctx, result.InvalidAddresses())

	switch {
	case result.SkippedCount > 0:
		log.Info("No push address for user, notification recorded only")
	case result.FailureCount > 0:
		log.Warn("Order status notification failed", "kind", result.Errors[0].Kind)
	default:
		log.Info("Order status notification sent")
	}
	return result
}

// Campaign sends a promotion to every registered address and records it in
// each recipient's history.
func (h *Handlers) Campaign(ctx context.Context, req CampaignRequest) (CampaignResult, error) {
	if !req.CallerIsPrivileged {
		return CampaignResult{}, fmt.Errorf("campaign requires admin access: %w", dispatch.ErrPermissionDenied)
	}
	title, body := strings.TrimSpace(req.Title), strings.TrimSpace(req.Body)
	if title == "" || body == "" {
		return CampaignResult{}, fmt.Errorf("title and body are required: %w", dispatch.ErrInvalidArgument)
	}
	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL != "" && !validImageURL(imageURL) {
		return CampaignResult{}, fmt.Errorf("image url %q must be an absolute http(s) url: %w", imageURL, dispatch.ErrInvalidArgument)
	}

	targets, err := h.deps.Resolver.All(ctx)
	if err != nil {
		return CampaignResult{}, fmt.Errorf("failed to list recipients: %w", err)
	}

	payload := composer.Promotion(title, body, imageURL, h.now())
	job := dispatch.DispatchJob{Targets: targets, PayloadFor: dispatch.SharedPayload(payload)}

	result := h.deps.Dispatcher.Dispatch(ctx, job)

	meta := history.Meta{Category: dispatch.CategoryPromotion}
	if imageURL != "" {
		meta.Extra = map[string]string{"imageUrl": imageURL}
	}
	fctx, cancel := followUp(ctx)
	defer cancel()
	h.deps.Recorder.RecordAll(fctx, job, meta)
	h.deps.Resolver.Forget(fctx, result.InvalidAddresses())

	h.logger.Info("Campaign complete",
		"recipients", len(targets),
		"sent", result.SuccessCount,
		"failed", result.FailureCount,
		"batches", result.Batches,
	)
	return CampaignResult{
		Success:     true,
		TotalSent:   result.SuccessCount,
		TotalFailed: result.FailureCount,
		Message:     fmt.Sprintf("Sent %d notifications successfully, %d failed", result.SuccessCount, result.FailureCount),
	}, nil
}

// UserCreated schedules the welcome notification for a new user.
func (h *Handlers) UserCreated(_ context.Context, userID string) *tasks.Handle {
	return h.deps.Tasks.Schedule("welcome:"+userID, h.welcomeDelay, func(ctx context.Context) error {
		return h.welcome(ctx, userID)
	})
}

func (h *Handlers) welcome(ctx context.Context, userID string) error {
	target := h.deps.Resolver.Resolve(ctx, userID)
	payload := composer.Welcome(h.now())

	fctx, cancel := followUp(ctx)
	defer cancel()
	id := h.deps.Recorder.Record(fctx, target,
		dispatch.NotificationPayload{Title: payload.Title, Body: composer.WelcomeHistoryBody},
		history.Meta{Category: dispatch.CategoryWelcome, Extra: map[string]string{"isWelcome": "true"}},
	)
	if id == "" {
		h.logger.Warn("Welcome notification not recorded", "user_id", userID)
	}

	if !target.HasAddress {
		h.logger.Info("No push address for new user, welcome recorded only", "user_id", userID)
		return nil
	}
	result := h.deps.Dispatcher.Dispatch(ctx, dispatch.DispatchJob{
		Targets:    []dispatch.DeliveryTarget{target},
		PayloadFor: dispatch.SharedPayload(payload),
	})
	h.deps.Resolver.Forget(fctx, result.InvalidAddresses())
	if result.FailureCount > 0 {
		return fmt.Errorf("welcome push to %s failed: %s", userID, result.Errors[0].Kind)
	}
	return nil
}

// Sweep deletes expired notification history.
func (h *Handlers) Sweep(ctx context.Context) (int, error) {
	return h.deps.Sweeper.Sweep(ctx, h.now())
}

// followUp detaches ctx from its cancellation so that every target still gets
// its history record when the dispatch was cut short.
func followUp(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
}

func validImageURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
