package subscription

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/app/service/checkout"
	"github.com/glasswing-io/tiergate/internal/app/service/webhook"
	"github.com/glasswing-io/tiergate/internal/platform/provider"
	"github.com/glasswing-io/tiergate/pkg/config"
)

// Service is the subscription state machine: per-event-type handlers that
// read and conditionally mutate the user record, plus the synchronous
// plan-change flow those handlers dovetail with.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	provider provider.Client
	sessions *checkout.Service
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, pc provider.Client, sessions *checkout.Service, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, provider: pc, sessions: sessions, log: log}
}

// RegisterEventHandlers binds every state-machine handler to its event type.
// Each event type routes to exactly one handler.
func RegisterEventHandlers(d *webhook.Dispatcher, s *Service) {
	d.Register(webhook.EventPaymentSucceeded, s.HandlePaymentSucceeded)
	d.Register(webhook.EventPaymentFailed, s.HandlePaymentFailed)
	d.Register(webhook.EventPaymentProcessing, s.HandlePaymentProcessing)
	d.Register(webhook.EventPaymentCancelled, s.HandlePaymentCancelled)

	d.Register(webhook.EventSubscriptionCreated, s.HandleSubscriptionCreated)
	d.Register(webhook.EventSubscriptionActive, s.HandleSubscriptionActive)
	d.Register(webhook.EventSubscriptionUpdated, s.HandleSubscriptionUpdated)
	d.Register(webhook.EventSubscriptionRenewed, s.HandleSubscriptionRenewed)
	d.Register(webhook.EventSubscriptionCancelled, s.HandleSubscriptionCancelled)
	d.Register(webhook.EventSubscriptionExpired, s.HandleSubscriptionExpired)
	d.Register(webhook.EventSubscriptionFailed, s.HandleSubscriptionFailed)
	d.Register(webhook.EventSubscriptionOnHold, s.HandleSubscriptionOnHold)
	d.Register(webhook.EventSubscriptionPlanChanged, s.HandleSubscriptionPlanChanged)

	d.Register(webhook.EventCustomerCreated, s.HandleCustomerCreated)
	d.Register(webhook.EventDisputeOpened, s.HandleDisputeOpened)
	d.Register(webhook.EventRefundSucceeded, s.HandleRefundSucceeded)

	d.Register(webhook.EventCheckoutExpired, s.HandleCheckoutExpired)
	d.Register(webhook.EventSessionExpired, s.HandleCheckoutExpired)
}
