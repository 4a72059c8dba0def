package webhook

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventPaymentSucceeded  EventType = "payment.succeeded"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentProcessing EventType = "payment.processing"
	EventPaymentCancelled  EventType = "payment.cancelled"

	EventSubscriptionCreated     EventType = "subscription.created"
	EventSubscriptionActive      EventType = "subscription.active"
	EventSubscriptionUpdated     EventType = "subscription.updated"
	EventSubscriptionRenewed     EventType = "subscription.renewed"
	EventSubscriptionCancelled   EventType = "subscription.cancelled"
	EventSubscriptionExpired     EventType = "subscription.expired"
	EventSubscriptionFailed      EventType = "subscription.failed"
	EventSubscriptionOnHold      EventType = "subscription.on_hold"
	EventSubscriptionPlanChanged EventType = "subscription.plan_changed"

	EventCustomerCreated EventType = "customer.created"
	EventDisputeOpened   EventType = "dispute.opened"
	EventRefundSucceeded EventType = "refund.succeeded"

	EventCheckoutExpired EventType = "checkout.expired"
	EventSessionExpired  EventType = "session.expired"
)

// Event is the normalized form of a provider webhook. Exactly one payload
// pointer is set for known event types; unknown types carry only Type and
// Raw and are acknowledged without processing.
type Event struct {
	Type         EventType
	Payment      *PaymentPayload
	Subscription *SubscriptionPayload
	Customer     *CustomerPayload
	Dispute      *DisputePayload
	Refund       *RefundPayload
	Session      *SessionPayload
	Raw          json.RawMessage
}

// Known reports whether the event type maps to a registered payload shape.
func (e *Event) Known() bool {
	return e.Payment != nil || e.Subscription != nil || e.Customer != nil ||
		e.Dispute != nil || e.Refund != nil || e.Session != nil
}

type PaymentPayload struct {
	PaymentID      string            `json:"payment_id"`
	CustomerID     string            `json:"customer_id"`
	CustomerEmail  string            `json:"customer_email"`
	SubscriptionID string            `json:"subscription_id"`
	TotalAmount    int64             `json:"total_amount"`
	Currency       string            `json:"currency"`
	PaymentLink    string            `json:"payment_link"`
	Metadata       map[string]string `json:"metadata"`
	CreatedAt      *time.Time        `json:"created_at"`
}

type SubscriptionPayload struct {
	SubscriptionID   string            `json:"subscription_id"`
	CustomerID       string            `json:"customer_id"`
	CustomerEmail    string            `json:"customer_email"`
	ProductID        string            `json:"product_id"`
	Status           string            `json:"status"`
	CurrentPeriodEnd *time.Time        `json:"current_period_end"`
	NextBillingDate  *time.Time        `json:"next_billing_date"`
	CancelledAt      *time.Time        `json:"cancelled_at"`
	Metadata         map[string]string `json:"metadata"`
}

// PeriodEnd returns the best-known end of the current billing period.
func (p *SubscriptionPayload) PeriodEnd() *time.Time {
	if p.CurrentPeriodEnd != nil {
		return p.CurrentPeriodEnd
	}
	return p.NextBillingDate
}

type CustomerPayload struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

type DisputePayload struct {
	DisputeID     string `json:"dispute_id"`
	PaymentID     string `json:"payment_id"`
	CustomerEmail string `json:"customer_email"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

type RefundPayload struct {
	RefundID      string `json:"refund_id"`
	PaymentID     string `json:"payment_id"`
	CustomerEmail string `json:"customer_email"`
	Amount        int64  `json:"amount"`
	IsPartial     bool   `json:"is_partial"`
}

type SessionPayload struct {
	SessionID string `json:"session_id"`
}
