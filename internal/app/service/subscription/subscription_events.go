package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/app/service/webhook"
	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/pkg/logctx"
	"github.com/glasswing-io/tiergate/pkg/types"
)

// HandleSubscriptionCreated stores the subscription identifier and, when
// the subscription is already active and the product resolvable, performs
// the first tier activation. Nothing can be pending at this point.
func (s *Service) HandleSubscriptionCreated(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}

	before := *user
	s.refreshProviderIDs(user, sub.CustomerID, sub.SubscriptionID)

	if sub.Status == "active" {
		if product := s.cfg.ResolveProduct(sub.ProductID); product != nil {
			s.applyProduct(user, product, sub.PeriodEnd())
		}
	}

	if session, err := s.sessions.Correlate(ctx, user.ID, sub.Metadata["session_id"], sub.SubscriptionID); err != nil {
		return err
	} else if session != nil && session.SubscriptionID == nil {
		if err := s.sessions.AttachSubscription(ctx, session.ID, sub.SubscriptionID); err != nil {
			return err
		}
	}

	return s.saveUser(ctx, &before, user, types.TierChangeReasonPurchase,
		map[string]any{"event_type": string(evt.Type), "subscription_id": sub.SubscriptionID})
}

// HandleSubscriptionActive activates the tier from the event's product and
// billing period and completes the correlated pending checkout session.
func (s *Service) HandleSubscriptionActive(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}

	before := *user
	s.refreshProviderIDs(user, sub.CustomerID, sub.SubscriptionID)
	user.SubscriptionStatus = types.SubscriptionStatusActive
	if product := s.cfg.ResolveProduct(sub.ProductID); product != nil {
		s.applyProduct(user, product, sub.PeriodEnd())
	}

	if session, err := s.sessions.Correlate(ctx, user.ID, sub.Metadata["session_id"], sub.SubscriptionID); err != nil {
		return err
	} else if session != nil {
		if err := s.sessions.Complete(ctx, session.ID, nil, lo.ToPtr(sub.SubscriptionID)); err != nil {
			return err
		}
	}

	return s.saveUser(ctx, &before, user, types.TierChangeReasonPurchase,
		map[string]any{"event_type": string(evt.Type), "subscription_id": sub.SubscriptionID})
}

// HandleSubscriptionUpdated resolves the tier from the event's current
// product id, which wins over any stale metadata. While a plan change is
// PENDING the active tier is untouched (payment not yet confirmed); once
// COMPLETED this event applies it when the effective date has passed,
// and otherwise only refreshes the period and identifiers.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}

	before := *user
	s.refreshProviderIDs(user, sub.CustomerID, sub.SubscriptionID)

	if user.PlanChangeStatus == types.PlanChangeStatusPending {
		// Payment for the pending change is not confirmed; only the expiry
		// and provider identifiers may move.
		if end := sub.PeriodEnd(); end != nil {
			user.TierExpiresAt = end
		}
		return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
			map[string]any{"event_type": string(evt.Type), "guarded": true})
	}

	if sub.Status == "cancelled" || sub.Status == "expired" {
		s.revokeTier(user, sub.CancelledAt)
		if sub.Status == "expired" {
			user.SubscriptionStatus = types.SubscriptionStatusExpired
		} else {
			user.SubscriptionStatus = types.SubscriptionStatusCancelled
		}
		return s.saveUser(ctx, &before, user, types.TierChangeReasonCancel,
			map[string]any{"event_type": string(evt.Type), "provider_status": sub.Status})
	}

	if user.PlanChangeStatus == types.PlanChangeStatusCompleted {
		applied := s.applyPendingChangeIfDue(user, time.Now(), sub.PeriodEnd())
		if !applied {
			// Settled but not yet effective; until the effective date only
			// the period may move, so a later renewal or the reconciler
			// still finds the pending fields intact.
			if end := sub.PeriodEnd(); end != nil {
				user.TierExpiresAt = end
			}
		}
		return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
			map[string]any{"event_type": string(evt.Type), "pending_applied": applied})
	}

	product := s.cfg.ResolveProduct(sub.ProductID)
	if product == nil {
		logctx.FromCtx(ctx, s.log).Warnw("subscription_updated_unknown_product",
			"user_id", user.ID, "product_id", sub.ProductID)
		return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
			map[string]any{"event_type": string(evt.Type)})
	}

	s.applyProduct(user, product, sub.PeriodEnd())

	return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
		map[string]any{"event_type": string(evt.Type), "product_id": sub.ProductID})
}

// HandleSubscriptionRenewed is the primary application point for deferred
// plan changes; otherwise it extends the expiry and resets status to ACTIVE.
func (s *Service) HandleSubscriptionRenewed(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}

	before := *user
	s.refreshProviderIDs(user, sub.CustomerID, sub.SubscriptionID)

	applied := s.applyPendingChangeIfDue(user, time.Now(), sub.PeriodEnd())
	if !applied {
		if end := sub.PeriodEnd(); end != nil {
			user.TierExpiresAt = end
		} else if user.ActiveTier != nil {
			if product, err := s.cfg.ProductFor(user.Tier(), user.Frequency()); err == nil {
				user.TierExpiresAt = lo.ToPtr(product.ExpirationFor(nil, time.Now()))
			}
		}
	}
	user.SubscriptionStatus = types.SubscriptionStatusActive

	reason := types.TierChangeReasonRenewal
	if applied {
		reason = types.TierChangeReasonPlanChange
	}
	return s.saveUser(ctx, &before, user, reason,
		map[string]any{"event_type": string(evt.Type), "pending_applied": applied})
}

// HandleSubscriptionCancelled revokes the entitlement at cancellation time.
func (s *Service) HandleSubscriptionCancelled(ctx context.Context, evt *webhook.Event) error {
	return s.revokeFromEvent(ctx, evt, types.SubscriptionStatusCancelled)
}

// HandleSubscriptionExpired revokes the entitlement.
func (s *Service) HandleSubscriptionExpired(ctx context.Context, evt *webhook.Event) error {
	return s.revokeFromEvent(ctx, evt, types.SubscriptionStatusExpired)
}

// HandleSubscriptionFailed marks the subscription FAILED, preserving the
// tier; grace handling happens in the reconciler. The event is a no-op for
// users already in GRACE, CANCELLED or EXPIRED.
func (s *Service) HandleSubscriptionFailed(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}
	if s.terminalStatusGuard(ctx, user, evt) {
		return nil
	}

	before := *user
	user.SubscriptionStatus = types.SubscriptionStatusFailed
	return s.saveUser(ctx, &before, user, types.TierChangeReasonRenewal,
		map[string]any{"event_type": string(evt.Type)})
}

// HandleSubscriptionOnHold puts the subscription on hold; a pending plan
// change is demoted to PAYMENT_NEEDED. Same terminal-status guard as
// subscription.failed.
func (s *Service) HandleSubscriptionOnHold(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}
	if s.terminalStatusGuard(ctx, user, evt) {
		return nil
	}

	before := *user
	user.SubscriptionStatus = types.SubscriptionStatusOnHold
	if user.PlanChangeStatus == types.PlanChangeStatusPending {
		user.PlanChangeStatus = types.PlanChangeStatusPaymentNeeded
	}
	return s.saveUser(ctx, &before, user, types.TierChangeReasonRenewal,
		map[string]any{"event_type": string(evt.Type)})
}

// HandleSubscriptionPlanChanged reconciles provider-initiated plan changes.
// When a change is already PENDING the event is only a confirmation of the
// change this service initiated. PAYMENT_NEEDED is deliberately left alone.
func (s *Service) HandleSubscriptionPlanChanged(ctx context.Context, evt *webhook.Event) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}

	switch user.PlanChangeStatus {
	case types.PlanChangeStatusPending:
		logctx.FromCtx(ctx, s.log).Infow("plan_changed_confirmation", "user_id", user.ID)
		return nil
	case types.PlanChangeStatusPaymentNeeded:
		logctx.FromCtx(ctx, s.log).Warnw("plan_changed_while_payment_needed",
			"user_id", user.ID, "product_id", sub.ProductID)
		return nil
	}

	product := s.cfg.ResolveProduct(sub.ProductID)
	if product == nil {
		logctx.FromCtx(ctx, s.log).Warnw("plan_changed_unknown_product",
			"user_id", user.ID, "product_id", sub.ProductID)
		return nil
	}

	changeType := types.DetermineChangeType(user.Tier(), product.Tier, user.Frequency(), product.BillingFrequency)
	if changeType == types.PlanChangeTypeNoChange {
		return nil
	}

	before := *user
	s.storePendingChange(user, product, changeType, time.Now())
	return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
		map[string]any{"event_type": string(evt.Type), "change_type": string(changeType), "external": true})
}

// HandleCustomerCreated backfills the provider customer id, never
// overwriting an existing one.
func (s *Service) HandleCustomerCreated(ctx context.Context, evt *webhook.Event) error {
	c := evt.Customer
	if c == nil {
		return fmt.Errorf("customer event without payload")
	}
	user, err := s.findUser(ctx, "", c.Email, "", "")
	if err != nil {
		return err
	}
	if user == nil {
		logctx.FromCtx(ctx, s.log).Warnw("customer_event_user_not_found", "email", c.Email)
		return nil
	}
	if user.ProviderCustomerID != nil {
		return nil
	}

	before := *user
	user.ProviderCustomerID = lo.ToPtr(c.CustomerID)
	return s.saveUser(ctx, &before, user, types.TierChangeReasonPurchase,
		map[string]any{"event_type": string(evt.Type)})
}

// HandleDisputeOpened marks the disputed payment.
func (s *Service) HandleDisputeOpened(ctx context.Context, evt *webhook.Event) error {
	d := evt.Dispute
	if d == nil {
		return fmt.Errorf("dispute event without payload")
	}
	payment, err := s.paymentByProviderID(ctx, d.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		user, err := s.findUser(ctx, "", d.CustomerEmail, "", "")
		if err != nil {
			return err
		}
		if user == nil {
			logctx.FromCtx(ctx, s.log).Warnw("dispute_unmatched", "payment_id", d.PaymentID)
			return nil
		}
		return s.savePayment(ctx, &models.Payment{
			ProviderPaymentID: d.PaymentID,
			UserID:            user.ID,
			Status:            types.PaymentStatusDisputed,
			Amount:            d.Amount,
			Raw:               datatypes.JSON(evt.Raw),
		})
	}

	payment.Status = types.PaymentStatusDisputed
	return s.savePayment(ctx, payment)
}

// HandleRefundSucceeded marks the payment refunded. A full refund revokes
// the entitlement immediately; a partial one leaves the tier alone.
func (s *Service) HandleRefundSucceeded(ctx context.Context, evt *webhook.Event) error {
	r := evt.Refund
	if r == nil {
		return fmt.Errorf("refund event without payload")
	}
	payment, err := s.paymentByProviderID(ctx, r.PaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		logctx.FromCtx(ctx, s.log).Warnw("refund_unmatched", "payment_id", r.PaymentID)
		return nil
	}

	payment.Status = types.PaymentStatusRefunded
	if err := s.savePayment(ctx, payment); err != nil {
		return err
	}
	if r.IsPartial {
		return nil
	}

	user, err := s.GetUser(ctx, payment.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	before := *user
	s.revokeTier(user, nil)
	user.SubscriptionStatus = types.SubscriptionStatusNone
	return s.saveUser(ctx, &before, user, types.TierChangeReasonRefund,
		map[string]any{"event_type": string(evt.Type), "payment_id": r.PaymentID})
}

// HandleCheckoutExpired expires the local session row by provider id.
func (s *Service) HandleCheckoutExpired(ctx context.Context, evt *webhook.Event) error {
	if evt.Session == nil || evt.Session.SessionID == "" {
		return fmt.Errorf("session event without session id")
	}
	return s.sessions.ExpireByProviderID(ctx, evt.Session.SessionID)
}

// --- helpers ---

func (s *Service) userForSubscription(ctx context.Context, evt *webhook.Event, sub *webhook.SubscriptionPayload) (*models.User, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscription event %s without payload", evt.Type)
	}
	user, err := s.findUser(ctx, sub.Metadata["user_id"], sub.CustomerEmail, sub.CustomerID, sub.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		logctx.FromCtx(ctx, s.log).Warnw("subscription_event_user_not_found",
			"event_type", evt.Type, "subscription_id", sub.SubscriptionID)
		return nil, nil
	}
	return user, nil
}

// terminalStatusGuard reports whether the user's status makes failure-type
// events a no-op.
func (s *Service) terminalStatusGuard(ctx context.Context, user *models.User, evt *webhook.Event) bool {
	switch user.SubscriptionStatus {
	case types.SubscriptionStatusGrace, types.SubscriptionStatusCancelled, types.SubscriptionStatusExpired:
		logctx.FromCtx(ctx, s.log).Infow("subscription_event_guarded_noop",
			"event_type", evt.Type, "user_id", user.ID, "status", user.SubscriptionStatus)
		return true
	}
	return false
}

// applyProduct grants the product's tier and recomputes the expiry.
func (s *Service) applyProduct(user *models.User, product *types.TierProduct, periodEnd *time.Time) {
	user.ActiveTier = lo.ToPtr(product.Tier)
	user.ActiveLength = lo.ToPtr(product.BillingFrequency)
	user.TierExpiresAt = lo.ToPtr(product.ExpirationFor(periodEnd, time.Now()))
}

// revokeTier drops the user to free.
func (s *Service) revokeTier(user *models.User, at *time.Time) {
	when := time.Now()
	if at != nil {
		when = *at
	}
	user.ActiveTier = lo.ToPtr(types.TierFree)
	user.ActiveLength = nil
	user.TierExpiresAt = &when
}

func (s *Service) revokeFromEvent(ctx context.Context, evt *webhook.Event, status types.SubscriptionStatus) error {
	sub := evt.Subscription
	user, err := s.userForSubscription(ctx, evt, sub)
	if err != nil || user == nil {
		return err
	}

	before := *user
	s.revokeTier(user, sub.CancelledAt)
	user.SubscriptionStatus = status
	return s.saveUser(ctx, &before, user, types.TierChangeReasonCancel,
		map[string]any{"event_type": string(evt.Type)})
}

func (s *Service) paymentByProviderID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	if providerPaymentID == "" {
		return nil, nil
	}
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
