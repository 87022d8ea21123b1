package dispatch

import (
	"context"
	"time"
)

// Gateway defines the contract for a push-notification provider
// (e.g., Google's FCM, Apple's APNS).
type Gateway interface {
	// SendOne delivers a single message. A non-nil error is a *SendError
	// carrying the failure kind.
	SendOne(ctx context.Context, msg Message) error

	// SendBatch delivers a batch of messages and returns one Outcome per
	// message, in order. A non-nil error means the whole batch failed and no
	// per-message breakdown is available.
	SendBatch(ctx context.Context, msgs []Message) ([]Outcome, error)
}

// AddressStore defines the contract for managing user push addresses.
// It allows the service to remember "where" to send notifications for a user.
type AddressStore interface {
	// GetAddress returns the current push address for a recipient, or
	// ErrNotFound if none is registered.
	GetAddress(ctx context.Context, recipientID string) (string, error)

	// ListAddresses returns every recipient with a registered address.
	ListAddresses(ctx context.Context) ([]DeliveryTarget, error)

	// SetAddress adds or replaces the push address of a recipient.
	SetAddress(ctx context.Context, recipientID, address string) error

	// RemoveAddress deletes the push address of a recipient. Removing a
	// missing address is not an error.
	RemoveAddress(ctx context.Context, recipientID string) error

	// RemoveAddressIfMatch deletes the push address of a recipient only if
	// it still equals address, and reports whether it did. A token the user
	// registered after a failed send must survive cleanup of the old one.
	RemoveAddressIfMatch(ctx context.Context, recipientID, address string) (bool, error)
}

// RecordStore persists the notification history.
type RecordStore interface {
	// Insert writes a record and returns its id.
	Insert(ctx context.Context, rec NotificationRecord) (string, error)

	// QueryOlderThan returns references to every record created before ts.
	QueryOlderThan(ctx context.Context, ts time.Time) ([]RecordRef, error)

	// DeleteBatch deletes the referenced records in one store operation.
	DeleteBatch(ctx context.Context, refs []RecordRef) error
}
