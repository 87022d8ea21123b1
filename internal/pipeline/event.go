// Package pipeline decodes service events from Pub/Sub and routes them to
// the event handlers through a go-dataflow StreamingService.
package pipeline

import (
	"github.com/tinywideclouds/go-order-notification-service/internal/events"
)

type EventType string

const (
	EventOrderUpdated   EventType = "order_updated"
	EventUserCreated    EventType = "user_created"
	EventRetentionSweep EventType = "retention_sweep"
)

// Event is the JSON envelope published on the events topic.
//
//	{"type":"order_updated","before":{...},"after":{...}}
//	{"type":"user_created","userId":"abc"}
//	{"type":"retention_sweep"}
type Event struct {
	Type   EventType          `json:"type"`
	Before *events.OrderState `json:"before,omitempty"`
	After  *events.OrderState `json:"after,omitempty"`
	UserID string             `json:"userId,omitempty"`
}
