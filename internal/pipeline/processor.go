package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-order-notification-service/internal/events"
	"github.com/tinywideclouds/go-order-notification-service/internal/tasks"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// Handler is the subset of events.Handlers the pipeline drives.
type Handler interface {
	OrderUpdated(ctx context.Context, prev, next events.OrderState) dispatch.BatchResult
	UserCreated(ctx context.Context, userID string) *tasks.Handle
	Sweep(ctx context.Context) (int, error)
}

// NewProcessor routes decoded events to the handlers. Notification events
// are always acknowledged: delivery failures are already folded into the
// result and history is written, so a redelivery would only duplicate
// records. A failed sweep is returned so the message is retried.
func NewProcessor(h Handler, logger *slog.Logger) messagepipeline.StreamProcessor[Event] {
	return func(ctx context.Context, original messagepipeline.Message, ev *Event) error {
		procLogger := logger.With("event_type", ev.Type, "pubsub_msg_id", original.ID)

		switch ev.Type {
		case EventOrderUpdated:
			res := h.OrderUpdated(ctx, *ev.Before, *ev.After)
			procLogger.Debug("Order event processed",
				"order_id", ev.After.OrderID,
				"sent", res.SuccessCount,
				"failed", res.FailureCount,
				"skipped", res.SkippedCount,
			)
		case EventUserCreated:
			h.UserCreated(ctx, ev.UserID)
			procLogger.Debug("Welcome scheduled", "user_id", ev.UserID)
		case EventRetentionSweep:
			deleted, err := h.Sweep(ctx)
			if err != nil {
				procLogger.Error("Retention sweep failed", "deleted", deleted, "err", err)
				return fmt.Errorf("retention sweep: %w", err)
			}
			procLogger.Info("Retention sweep complete", "deleted", deleted)
		default:
			procLogger.Warn("Dropping unroutable event")
		}
		return nil
	}
}
