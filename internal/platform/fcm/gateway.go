// Package fcm delivers push notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// MessagingClient is the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEach(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error)
}

type Gateway struct {
	client MessagingClient
	logger *slog.Logger
}

func NewGateway(client MessagingClient, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logger.With("component", "FCMGateway"),
	}
}

// SendOne delivers a single message.
func (g *Gateway) SendOne(ctx context.Context, msg dispatch.Message) error {
	_, err := g.client.Send(ctx, BuildMessage(msg))
	if err != nil {
		return dispatch.NewSendError(Classify(err), err)
	}
	return nil
}

// SendBatch delivers up to 500 messages in one call. The returned outcomes
// are in input order. An error means the whole batch was rejected.
func (g *Gateway) SendBatch(ctx context.Context, msgs []dispatch.Message) ([]dispatch.Outcome, error) {
	if len(msgs) > dispatch.DefaultBatchSize {
		return nil, fmt.Errorf("fcm batch of %d exceeds limit %d", len(msgs), dispatch.DefaultBatchSize)
	}
	fcmMsgs := make([]*messaging.Message, len(msgs))
	for i, m := range msgs {
		fcmMsgs[i] = BuildMessage(m)
	}

	br, err := g.client.SendEach(ctx, fcmMsgs)
	if err != nil {
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	outcomes := make([]dispatch.Outcome, len(msgs))
	for i := range outcomes {
		if i >= len(br.Responses) || br.Responses[i] == nil {
			outcomes[i] = dispatch.Outcome{Kind: dispatch.KindUnknown}
			continue
		}
		resp := br.Responses[i]
		if resp.Success {
			outcomes[i] = dispatch.Outcome{Success: true, MessageID: resp.MessageID}
			continue
		}
		outcomes[i] = dispatch.Outcome{Kind: Classify(resp.Error), Err: resp.Error}
	}
	if br.FailureCount > 0 {
		g.logger.Debug("FCM batch had failures", "size", len(msgs), "success", br.SuccessCount, "failed", br.FailureCount)
	}
	return outcomes, nil
}

// Classify maps a Firebase error to an ErrorKind. Errors that did not come
// from the SDK are unknown.
//
// INVALID_ARGUMENT covers malformed payloads as well as malformed tokens, so
// only the token-specific codes mark an address as dead.
func Classify(err error) dispatch.ErrorKind {
	switch {
	case err == nil:
		return ""
	case messaging.IsRegistrationTokenNotRegistered(err),
		messaging.IsSenderIDMismatch(err):
		return dispatch.KindInvalidAddress
	case messaging.IsInvalidArgument(err):
		return dispatch.KindInvalidPayload
	case messaging.IsQuotaExceeded(err):
		return dispatch.KindThrottled
	case messaging.IsUnavailable(err), messaging.IsInternal(err):
		return dispatch.KindGatewayUnavailable
	default:
		return dispatch.KindUnknown
	}
}

// BuildMessage translates a dispatch message into its FCM form, applying
// Android and APNs hints when present.
func BuildMessage(m dispatch.Message) *messaging.Message {
	p := m.Payload
	msg := &messaging.Message{
		Token: m.Address,
		Data:  p.Data,
		Notification: &messaging.Notification{
			Title:    p.Title,
			Body:     p.Body,
			ImageURL: p.ImageURL,
		},
	}

	h := p.Hints
	if h == nil {
		return msg
	}

	android := &messaging.AndroidConfig{
		Notification: &messaging.AndroidNotification{
			ChannelID:             h.AndroidChannelID,
			DefaultSound:          h.DefaultSound,
			DefaultVibrateTimings: h.DefaultVibrate,
			ImageURL:              p.ImageURL,
		},
	}
	if h.AndroidPriority != "" {
		android.Priority = h.AndroidPriority
	}
	msg.Android = android

	if h.APNSSound != "" || h.APNSBadge != nil || p.ImageURL != "" {
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: h.APNSSound,
					Badge: h.APNSBadge,
				},
			},
		}
		if p.ImageURL != "" {
			msg.APNS.FCMOptions = &messaging.APNSFCMOptions{ImageURL: p.ImageURL}
		}
	}
	return msg
}
