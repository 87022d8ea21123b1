// Package dispatch contains the public domain models and contracts of the
// order notification service.
package dispatch

import "time"

// DefaultBatchSize is the largest batch the push gateway accepts in one call.
const DefaultBatchSize = 500

// Category classifies a persisted notification.
type Category string

const (
	CategoryOrderStatus Category = "order_status"
	CategoryPromotion   Category = "promotion"
	CategoryWelcome     Category = "welcome"
	CategoryGeneral     Category = "general"
)

// PlatformHints carries optional per-platform delivery options.
type PlatformHints struct {
	AndroidChannelID string
	// AndroidPriority is "high" or "normal".
	AndroidPriority string
	DefaultSound    bool
	DefaultVibrate  bool

	APNSSound string
	APNSBadge *int
}

// NotificationPayload is the user-facing content of a push message.
// It is treated as immutable once composed.
type NotificationPayload struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
	Hints    *PlatformHints
}

// DeliveryTarget is a recipient and, if known, its push address.
// Targets without an address are recorded in history but never sent.
type DeliveryTarget struct {
	RecipientID string
	Address     string
	HasAddress  bool
}

// NewTarget builds a target with a resolved address.
func NewTarget(recipientID, address string) DeliveryTarget {
	return DeliveryTarget{RecipientID: recipientID, Address: address, HasAddress: address != ""}
}

// DispatchJob is a set of targets and the payload each one receives.
type DispatchJob struct {
	Targets    []DeliveryTarget
	PayloadFor func(recipientID string) NotificationPayload
}

// SharedPayload returns a PayloadFor function that gives every recipient p.
func SharedPayload(p NotificationPayload) func(string) NotificationPayload {
	return func(string) NotificationPayload { return p }
}

// Message is one (address, payload) pair handed to a Gateway.
type Message struct {
	RecipientID string
	Address     string
	Payload     NotificationPayload
}

// Outcome is the per-message result of a gateway send.
type Outcome struct {
	Success   bool
	MessageID string
	Kind      ErrorKind
	Err       error
}

// TargetError describes one failed target.
type TargetError struct {
	RecipientID string
	Address     string
	Kind        ErrorKind
}

// BatchResult tallies a dispatch. Skipped targets (no address) are neither
// successes nor failures.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	SkippedCount int
	Batches      int
	Errors       []TargetError
}

// Processed returns the number of targets that reached a gateway decision.
func (r BatchResult) Processed() int {
	return r.SuccessCount + r.FailureCount
}

// Merge folds other into r. Counts add, errors are appended in order.
func (r BatchResult) Merge(other BatchResult) BatchResult {
	errs := make([]TargetError, 0, len(r.Errors)+len(other.Errors))
	errs = append(errs, r.Errors...)
	errs = append(errs, other.Errors...)
	if len(errs) == 0 {
		errs = nil
	}
	return BatchResult{
		SuccessCount: r.SuccessCount + other.SuccessCount,
		FailureCount: r.FailureCount + other.FailureCount,
		SkippedCount: r.SkippedCount + other.SkippedCount,
		Batches:      r.Batches + other.Batches,
		Errors:       errs,
	}
}

// InvalidAddresses returns the targets the gateway rejected as dead addresses.
func (r BatchResult) InvalidAddresses() []TargetError {
	var out []TargetError
	for _, e := range r.Errors {
		if e.Kind == KindInvalidAddress {
			out = append(out, e)
		}
	}
	return out
}

// NotificationRecord is one entry of a user's notification history.
type NotificationRecord struct {
	ID             string            `firestore:"-"`
	RecipientID    string            `firestore:"userId"`
	Title          string            `firestore:"title"`
	Body           string            `firestore:"message"`
	Category       Category          `firestore:"type"`
	RelatedOrderID string            `firestore:"orderId,omitempty"`
	OrderStatus    string            `firestore:"orderStatus,omitempty"`
	CreatedAt      time.Time         `firestore:"createdAt"`
	IsRead         bool              `firestore:"isRead"`
	Extra          map[string]string `firestore:"additionalData,omitempty"`
}

// RecordRef identifies a stored NotificationRecord.
type RecordRef struct {
	ID string
}

// Chunk splits items into consecutive slices of at most size elements,
// preserving order.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
