package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/glasswing-io/tiergate/pkg/config"
)

// ErrSessionNotFound is returned when the provider no longer knows the
// checkout session (vanished or expired upstream).
var ErrSessionNotFound = errors.New("provider: checkout session not found")

// CheckoutSession is the provider's view of a hosted checkout flow.
type CheckoutSession struct {
	SessionID      string     `json:"session_id"`
	CheckoutURL    string     `json:"checkout_url"`
	Status         string     `json:"status"`
	PaymentID      string     `json:"payment_id"`
	SubscriptionID string     `json:"subscription_id"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// HasCompletedPayment reports whether the provider recorded a finished
// payment on this session.
func (s *CheckoutSession) HasCompletedPayment() bool {
	return s != nil && (s.PaymentID != "" || s.Status == "completed" || s.Status == "succeeded")
}

type CreateCheckoutRequest struct {
	ProductID     string            `json:"product_id"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

type ChangePlanRequest struct {
	ProductID string `json:"product_id"`
	// ProrationMode controls how the provider bills the difference.
	ProrationMode string `json:"proration_billing_mode"`
}

// ProrationImmediate bills the plan difference immediately; the new tier is
// only applied locally once the resulting payment is confirmed.
const ProrationImmediate = "prorated_immediately"

// Client is the outbound payment-provider API surface this service needs.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req *CreateCheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ChangePlan(ctx context.Context, subscriptionID string, req *ChangePlanRequest) error
	CancelSubscription(ctx context.Context, subscriptionID string, atNextBilling bool) error
	// PaymentMethodUpdateLink returns a provider-hosted page where the user
	// can fix the payment method of a failed subscription.
	PaymentMethodUpdateLink(ctx context.Context, subscriptionID string) (string, error)
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) Client {
	return newHTTPClient(cfg, log)
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
