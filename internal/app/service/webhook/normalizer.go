package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoEventType marks envelopes without any recognizable event type field.
// The HTTP layer maps it to a 400; everything else is acknowledged.
var ErrNoEventType = errors.New("webhook: missing event type")

// envelope is the raw provider shape. Older provider versions named the
// type field "event" or "type" instead of "event_type".
type envelope struct {
	EventType   string          `json:"event_type"`
	LegacyEvent string          `json:"event"`
	LegacyType  string          `json:"type"`
	Data        json.RawMessage `json:"data"`
}

func (e *envelope) eventType() string {
	switch {
	case e.EventType != "":
		return e.EventType
	case e.LegacyEvent != "":
		return e.LegacyEvent
	default:
		return e.LegacyType
	}
}

// Normalize parses a raw webhook body into an Event. Unknown event types
// yield an Event carrying only Type and Raw; a missing type or malformed
// JSON is an error.
func Normalize(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("webhook: invalid envelope: %w", err)
	}

	et := env.eventType()
	if et == "" {
		return nil, ErrNoEventType
	}

	evt := &Event{Type: EventType(et), Raw: env.Data}
	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch {
	case strings.HasPrefix(et, "payment."):
		var p PaymentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("webhook: payment payload: %w", err)
		}
		evt.Payment = &p
	case strings.HasPrefix(et, "subscription."):
		var p SubscriptionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("webhook: subscription payload: %w", err)
		}
		evt.Subscription = &p
	case evt.Type == EventCustomerCreated:
		var p CustomerPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("webhook: customer payload: %w", err)
		}
		evt.Customer = &p
	case evt.Type == EventDisputeOpened:
		var p DisputePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("webhook: dispute payload: %w", err)
		}
		evt.Dispute = &p
	case evt.Type == EventRefundSucceeded:
		var p RefundPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("webhook: refund payload: %w", err)
		}
		evt.Refund = &p
	case evt.Type == EventCheckoutExpired || evt.Type == EventSessionExpired:
		var p SessionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("webhook: session payload: %w", err)
		}
		evt.Session = &p
	}

	return evt, nil
}
