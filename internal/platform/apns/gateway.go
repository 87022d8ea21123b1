// Package apns delivers push notifications through the Apple Push
// Notification Service.
package apns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

// Client is the subset of apns2.Client we use.
type Client interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 file.
	P8KeyContent string
	Sandbox      bool
}

type Gateway struct {
	client Client
	topic  string
	logger *slog.Logger
}

// NewGateway parses the P8 key up front so bad credentials fail at startup.
func NewGateway(cfg Config, logger *slog.Logger) (*Gateway, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}
	return NewGatewayWithClient(client, cfg.BundleID, logger), nil
}

func NewGatewayWithClient(client Client, topic string, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSGateway"),
	}
}

// SendOne delivers a single message.
func (g *Gateway) SendOne(ctx context.Context, msg dispatch.Message) error {
	o := g.push(ctx, msg)
	if o.Success {
		return nil
	}
	return dispatch.NewSendError(o.Kind, o.Err)
}

// SendBatch pushes each message in turn; the APNs HTTP/2 API has no
// multicast endpoint. It never rejects the batch as a whole.
func (g *Gateway) SendBatch(ctx context.Context, msgs []dispatch.Message) ([]dispatch.Outcome, error) {
	outcomes := make([]dispatch.Outcome, len(msgs))
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			outcomes[i] = dispatch.Outcome{Kind: dispatch.KindCancelled, Err: err}
			continue
		}
		outcomes[i] = g.push(ctx, m)
	}
	return outcomes, nil
}

func (g *Gateway) push(ctx context.Context, m dispatch.Message) dispatch.Outcome {
	res, err := g.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: m.Address,
		Topic:       g.topic,
		Priority:    apns2.PriorityHigh,
		Payload:     BuildPayload(m.Payload),
	})
	if err != nil {
		g.logger.Warn("APNs transport failed", "recipient_id", m.RecipientID, "err", err)
		return dispatch.Outcome{Kind: dispatch.KindGatewayUnavailable, Err: err}
	}
	if res.Sent() {
		return dispatch.Outcome{Success: true, MessageID: res.ApnsID}
	}
	kind := Classify(res)
	if kind != dispatch.KindInvalidAddress {
		g.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
	}
	return dispatch.Outcome{Kind: kind, Err: errors.New(res.Reason)}
}

// Classify maps an unsuccessful APNs response to an ErrorKind.
func Classify(res *apns2.Response) dispatch.ErrorKind {
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return dispatch.KindInvalidAddress
	case apns2.ReasonPayloadEmpty, apns2.ReasonPayloadTooLarge:
		return dispatch.KindInvalidPayload
	case apns2.ReasonTooManyRequests:
		return dispatch.KindThrottled
	}
	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return dispatch.KindThrottled
	case res.StatusCode >= http.StatusInternalServerError:
		return dispatch.KindGatewayUnavailable
	default:
		return dispatch.KindUnknown
	}
}

// BuildPayload renders a notification payload as an APNs alert.
func BuildPayload(p dispatch.NotificationPayload) *payload.Payload {
	b := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body)
	if h := p.Hints; h != nil {
		if h.APNSSound != "" {
			b.Sound(h.APNSSound)
		}
		if h.APNSBadge != nil {
			b.Badge(*h.APNSBadge)
		}
	}
	if p.ImageURL != "" {
		b.MutableContent().Custom("imageUrl", p.ImageURL)
	}
	for k, v := range p.Data {
		b.Custom(k, v)
	}
	return b
}
