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
	"github.com/glasswing-io/tiergate/pkg/tool"
	"github.com/glasswing-io/tiergate/pkg/types"
)

// HandlePaymentSucceeded records the completed payment and resolves a
// pending plan change to COMPLETED. It never applies a new tier itself:
// tier assignment is deferred to the subscription event carrying the
// product id.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, evt *webhook.Event) error {
	p := evt.Payment
	user, err := s.userForPayment(ctx, evt, p)
	if err != nil || user == nil {
		return err
	}

	session, err := s.sessions.Correlate(ctx, user.ID, p.Metadata["session_id"], p.SubscriptionID)
	if err != nil {
		return err
	}

	tier := s.bestKnownTier(user, session)
	if err := s.upsertPayment(ctx, user, p, types.PaymentStatusCompleted, tier, evt.Raw); err != nil {
		return err
	}

	if session != nil {
		var subID *string
		if p.SubscriptionID != "" {
			subID = lo.ToPtr(p.SubscriptionID)
		}
		if err := s.sessions.Complete(ctx, session.ID, lo.ToPtr(p.PaymentID), subID); err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}
	}

	before := *user
	s.refreshProviderIDs(user, p.CustomerID, p.SubscriptionID)

	if user.PlanChangeStatus == types.PlanChangeStatusPending {
		// Payment for the pending change is confirmed; the tier itself is
		// applied later by the subscription event carrying the new product.
		user.PlanChangeStatus = types.PlanChangeStatusCompleted
		logctx.FromCtx(ctx, s.log).Infow("plan_change_payment_confirmed",
			"user_id", user.ID, "payment_id", p.PaymentID)
	}

	return s.saveUser(ctx, &before, user, types.TierChangeReasonPurchase,
		map[string]any{"event_type": string(evt.Type), "payment_id": p.PaymentID})
}

// HandlePaymentFailed records the failure. A pending plan change is demoted
// to PAYMENT_NEEDED, keeping the pending tier fields so the user can retry.
func (s *Service) HandlePaymentFailed(ctx context.Context, evt *webhook.Event) error {
	p := evt.Payment
	user, err := s.userForPayment(ctx, evt, p)
	if err != nil || user == nil {
		return err
	}

	if err := s.upsertPayment(ctx, user, p, types.PaymentStatusFailed, s.bestKnownTier(user, nil), evt.Raw); err != nil {
		return err
	}

	if user.PlanChangeStatus != types.PlanChangeStatusPending {
		return nil
	}
	before := *user
	user.PlanChangeStatus = types.PlanChangeStatusPaymentNeeded
	return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
		map[string]any{"event_type": string(evt.Type), "payment_id": p.PaymentID})
}

// HandlePaymentProcessing records an in-flight payment with the provider's
// payment link for follow-up.
func (s *Service) HandlePaymentProcessing(ctx context.Context, evt *webhook.Event) error {
	p := evt.Payment
	user, err := s.userForPayment(ctx, evt, p)
	if err != nil || user == nil {
		return err
	}
	return s.upsertPayment(ctx, user, p, types.PaymentStatusProcessing, s.bestKnownTier(user, nil), evt.Raw)
}

// HandlePaymentCancelled records the cancellation and fails the correlated
// session.
func (s *Service) HandlePaymentCancelled(ctx context.Context, evt *webhook.Event) error {
	p := evt.Payment
	user, err := s.userForPayment(ctx, evt, p)
	if err != nil || user == nil {
		return err
	}

	if err := s.upsertPayment(ctx, user, p, types.PaymentStatusCancelled, s.bestKnownTier(user, nil), evt.Raw); err != nil {
		return err
	}

	session, err := s.sessions.Correlate(ctx, user.ID, p.Metadata["session_id"], p.SubscriptionID)
	if err != nil {
		return err
	}
	if session != nil {
		return s.sessions.MarkFailed(ctx, session.ID)
	}
	return nil
}

// userForPayment resolves the user a payment event belongs to, logging and
// dropping the event when nothing matches.
func (s *Service) userForPayment(ctx context.Context, evt *webhook.Event, p *webhook.PaymentPayload) (*models.User, error) {
	if p == nil {
		return nil, fmt.Errorf("payment event %s without payment payload", evt.Type)
	}
	user, err := s.findUser(ctx, p.Metadata["user_id"], p.CustomerEmail, p.CustomerID, p.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		logctx.FromCtx(ctx, s.log).Warnw("payment_event_user_not_found",
			"event_type", evt.Type, "payment_id", p.PaymentID, "customer_email", p.CustomerEmail)
		return nil, nil
	}
	return user, nil
}

// bestKnownTier picks the tier a payment most plausibly relates to.
func (s *Service) bestKnownTier(user *models.User, session *models.CheckoutSession) *types.Tier {
	if user.HasPendingChange() {
		return user.PendingTier
	}
	if session != nil && session.RequestedTier != "" {
		return lo.ToPtr(session.RequestedTier)
	}
	return user.ActiveTier
}

// refreshProviderIDs stores customer/subscription identifiers carried by a
// payment event without touching tier state.
func (s *Service) refreshProviderIDs(user *models.User, customerID, subscriptionID string) {
	if customerID != "" {
		user.ProviderCustomerID = lo.ToPtr(customerID)
	}
	if subscriptionID != "" {
		user.SubscriptionID = lo.ToPtr(subscriptionID)
	}
}

// upsertPayment creates or updates the payment row keyed by the provider
// payment id, making webhook redelivery idempotent.
func (s *Service) upsertPayment(ctx context.Context, user *models.User, p *webhook.PaymentPayload, status types.PaymentStatus, tier *types.Tier, raw []byte) error {
	row := &models.Payment{
		ProviderPaymentID: p.PaymentID,
		UserID:            user.ID,
		Status:            status,
		Amount:            p.TotalAmount,
		Currency:          p.Currency,
		Tier:              tier,
		Raw:               datatypes.JSON(raw),
	}
	if p.SubscriptionID != "" {
		row.ProviderSubscriptionID = lo.ToPtr(p.SubscriptionID)
	}
	if p.PaymentLink != "" {
		row.PaymentLink = lo.ToPtr(p.PaymentLink)
	}
	if status == types.PaymentStatusCompleted {
		paidAt := time.Now()
		if p.CreatedAt != nil {
			paidAt = *p.CreatedAt
		}
		row.PaidAt = &paidAt
	}
	return s.savePayment(ctx, row)
}

// savePayment upserts by provider payment id, preserving identity and
// creation time of an existing row.
func (s *Service) savePayment(ctx context.Context, row *models.Payment) error {
	var original models.Payment
	err := s.db.WithContext(ctx).
		Where("provider_payment_id = ?", row.ProviderPaymentID).
		First(&original).Error

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load original payment: %w", err)
	}

	if err == nil {
		row.ID = original.ID
		row.CreatedAt = original.CreatedAt
		// A late processing event must not regress a settled payment.
		if row.InFlight() && !original.InFlight() {
			row.Status = original.Status
		}
		if row.PaidAt == nil {
			row.PaidAt = original.PaidAt
		}
		if row.PaymentLink == nil {
			row.PaymentLink = original.PaymentLink
		}
	} else if row.ID == "" {
		row.ID = tool.GenerateUUIDV7()
	}

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}
