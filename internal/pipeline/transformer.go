package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// EventTransformer unmarshals and validates a raw message into an Event.
// Malformed or unknown events return skip=true with an error so the
// StreamingService Nacks them towards the dead-letter topic.
func EventTransformer(_ context.Context, msg *messagepipeline.Message) (*Event, bool, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal event from message %s: %w", msg.ID, err)
	}
	if err := ev.validate(); err != nil {
		return nil, true, fmt.Errorf("invalid event in message %s: %w", msg.ID, err)
	}
	return &ev, false, nil
}

func (e *Event) validate() error {
	switch e.Type {
	case EventOrderUpdated:
		if e.Before == nil || e.After == nil {
			return fmt.Errorf("%s requires before and after", e.Type)
		}
		if e.After.OrderID == "" {
			return fmt.Errorf("%s requires an order id", e.Type)
		}
	case EventUserCreated:
		if e.UserID == "" {
			return fmt.Errorf("%s requires a userId", e.Type)
		}
	case EventRetentionSweep:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
