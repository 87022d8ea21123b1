// Package resolver turns recipient ids into delivery targets.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// Resolver looks up the current push address of recipients.
type Resolver struct {
	store  dispatch.AddressStore
	logger *slog.Logger
}

func New(store dispatch.AddressStore, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With("component", "TokenResolver"),
	}
}

// Resolve returns the delivery target of a recipient. A recipient without an
// address, or whose address cannot be read, yields a target with no address:
// the caller still records history but skips push delivery.
func (r *Resolver) Resolve(ctx context.Context, recipientID string) dispatch.DeliveryTarget {
	addr, err := r.store.GetAddress(ctx, recipientID)
	switch {
	case err == nil:
		return dispatch.NewTarget(recipientID, addr)
	case errors.Is(err, dispatch.ErrNotFound):
		r.logger.Info("No push address for recipient", "recipient_id", recipientID)
	default:
		r.logger.Error("Failed to read push address", "recipient_id", recipientID, "err", err)
	}
	return dispatch.DeliveryTarget{RecipientID: recipientID}
}

// ResolveAll resolves each recipient in order.
func (r *Resolver) ResolveAll(ctx context.Context, recipientIDs []string) []dispatch.DeliveryTarget {
	targets := make([]dispatch.DeliveryTarget, len(recipientIDs))
	for i, id := range recipientIDs {
		targets[i] = r.Resolve(ctx, id)
	}
	return targets
}

// All returns every recipient with a registered address.
func (r *Resolver) All(ctx context.Context) ([]dispatch.DeliveryTarget, error) {
	return r.store.ListAddresses(ctx)
}

// Forget removes addresses the gateway reported as permanently invalid. An
// address is only removed while it is still the one that failed.
func (r *Resolver) Forget(ctx context.Context, failures []dispatch.TargetError) {
	if len(failures) == 0 {
		return
	}
	r.logger.Info("Cleaning up invalid push addresses", "count", len(failures))
	for _, f := range failures {
		if f.Address == "" {
			continue
		}
		removed, err := r.store.RemoveAddressIfMatch(ctx, f.RecipientID, f.Address)
		switch {
		case err != nil:
			r.logger.Warn("Failed to delete push address", "recipient_id", f.RecipientID, "err", err)
		case !removed:
			r.logger.Debug("Push address changed since send, keeping it", "recipient_id", f.RecipientID)
		}
	}
}
