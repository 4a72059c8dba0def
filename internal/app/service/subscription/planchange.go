package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/internal/platform/provider"
	"github.com/glasswing-io/tiergate/pkg/logctx"
	"github.com/glasswing-io/tiergate/pkg/types"
)

var (
	// ErrChangeAlreadyPending is returned when a plan change is requested
	// while another one awaits payment confirmation.
	ErrChangeAlreadyPending = errors.New("plan change already pending")
	// ErrPaymentInFlight is returned when a payment is still PENDING or
	// PROCESSING for the user.
	ErrPaymentInFlight = errors.New("payment in flight")
	// ErrNoSubscription is returned when the user has no provider
	// subscription to change.
	ErrNoSubscription = errors.New("no active subscription")
	// ErrUnknownProduct is returned for product ids missing from the tier
	// catalog.
	ErrUnknownProduct = errors.New("unknown product")
)

// PlanChangeResult describes the outcome of a plan-change request or
// preview.
type PlanChangeResult struct {
	ChangeType      types.PlanChangeType   `json:"change_type"`
	Status          types.PlanChangeStatus `json:"status"`
	CurrentTier     types.Tier             `json:"current_tier"`
	TargetTier      types.Tier             `json:"target_tier"`
	EffectiveDate   *time.Time             `json:"effective_date,omitempty"`
	RequiresPayment bool                   `json:"requires_payment"`
}

// ChangePlan runs the synchronous half of the two-phase plan-change
// handshake: it asks the provider to change the plan and records the
// pending fields, but never grants the new tier. payment.succeeded and the
// subsequent subscription.updated complete the transition.
func (s *Service) ChangePlan(ctx context.Context, userID, productID string) (*PlanChangeResult, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	product := s.cfg.ResolveProduct(productID)
	if product == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	if user.PlanChangeStatus == types.PlanChangeStatusPending {
		return nil, ErrChangeAlreadyPending
	}
	inFlight, err := s.hasPaymentInFlight(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, ErrPaymentInFlight
	}

	changeType := types.DetermineChangeType(user.Tier(), product.Tier, user.Frequency(), product.BillingFrequency)
	result := &PlanChangeResult{
		ChangeType:  changeType,
		CurrentTier: user.Tier(),
		TargetTier:  product.Tier,
	}
	if changeType == types.PlanChangeTypeNoChange {
		return result, nil
	}

	if user.SubscriptionID == nil {
		return nil, ErrNoSubscription
	}

	proration := provider.ProrationImmediate
	if changeType != types.PlanChangeTypeImmediateUpgrade {
		proration = "prorated_at_next_billing"
	}
	if err := s.provider.ChangePlan(ctx, *user.SubscriptionID, &provider.ChangePlanRequest{
		ProductID:     productID,
		ProrationMode: proration,
	}); err != nil {
		return nil, fmt.Errorf("provider plan change failed: %w", err)
	}

	before := *user
	s.storePendingChange(user, product, changeType, time.Now())
	if err := s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
		map[string]any{"change_type": string(changeType), "product_id": productID}); err != nil {
		return nil, err
	}

	result.Status = user.PlanChangeStatus
	result.EffectiveDate = user.PendingTierEffectiveDate
	result.RequiresPayment = user.PlanChangeStatus == types.PlanChangeStatusPending
	logctx.FromCtx(ctx, s.log).Infow("plan_change_initiated",
		"user_id", user.ID, "change_type", changeType, "target_tier", product.Tier)
	return result, nil
}

// PreviewChange classifies a prospective plan change without side effects.
func (s *Service) PreviewChange(ctx context.Context, userID, productID string) (*PlanChangeResult, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	product := s.cfg.ResolveProduct(productID)
	if product == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	changeType := types.DetermineChangeType(user.Tier(), product.Tier, user.Frequency(), product.BillingFrequency)
	result := &PlanChangeResult{
		ChangeType:      changeType,
		CurrentTier:     user.Tier(),
		TargetTier:      product.Tier,
		RequiresPayment: changeType == types.PlanChangeTypeImmediateUpgrade,
	}
	if changeType == types.PlanChangeTypeDeferredDowngrade || changeType == types.PlanChangeTypeDeferredFrequencyChange {
		result.EffectiveDate = user.TierExpiresAt
	}
	return result, nil
}

// CancelPendingChange clears an in-flight plan change and asks the provider
// to switch back to the current product. The provider revert is best
// effort: local state is authoritative for entitlements.
func (s *Service) CancelPendingChange(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPendingChange() {
		return nil
	}

	if user.SubscriptionID != nil {
		if current, err := s.cfg.ProductFor(user.Tier(), user.Frequency()); err == nil {
			if err := s.provider.ChangePlan(ctx, *user.SubscriptionID, &provider.ChangePlanRequest{
				ProductID:     current.ProductID,
				ProrationMode: provider.ProrationImmediate,
			}); err != nil {
				logctx.FromCtx(ctx, s.log).Errorw("plan_change_revert_failed", "user_id", user.ID, "error", err.Error())
			}
		}
	}

	before := *user
	user.ClearPendingChange()
	return s.saveUser(ctx, &before, user, types.TierChangeReasonPlanChange,
		map[string]any{"cancelled": true})
}

// ChangeStatus reports the user's plan-change state.
func (s *Service) ChangeStatus(ctx context.Context, userID string) (*models.User, error) {
	return s.GetUser(ctx, userID)
}

// RetryPayment returns a provider-hosted link where the user can update the
// payment method of a failed/on-hold subscription.
func (s *Service) RetryPayment(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.SubscriptionID == nil {
		return "", ErrNoSubscription
	}

	processing, err := s.hasPaymentInStatus(ctx, user.ID, types.PaymentStatusProcessing)
	if err != nil {
		return "", err
	}
	if processing {
		return "", ErrPaymentInFlight
	}

	return s.provider.PaymentMethodUpdateLink(ctx, *user.SubscriptionID)
}

// CancelSubscription asks the provider to stop the subscription at the next
// billing date. Local state moves when the cancellation webhook lands.
func (s *Service) CancelSubscription(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.SubscriptionID == nil {
		return ErrNoSubscription
	}
	return s.provider.CancelSubscription(ctx, *user.SubscriptionID, true)
}

// ApplyPendingChangeIfDue applies a due, payment-settled pending change and
// persists the user. Shared by the renewal handler and the reconciler
// backstop so the two paths can never disagree. Returns whether a change
// was applied.
func (s *Service) ApplyPendingChangeIfDue(ctx context.Context, user *models.User, now time.Time) (bool, error) {
	before := *user
	if !s.applyPendingChangeIfDue(user, now, nil) {
		return false, nil
	}
	if err := s.saveUser(ctx, &before, user, types.TierChangeReasonReconcile,
		map[string]any{"backstop": true}); err != nil {
		return false, err
	}
	return true, nil
}

// applyPendingChangeIfDue mutates the user in place when a pending change
// is due. A change still PENDING (payment unconfirmed) or PAYMENT_NEEDED is
// never applied.
func (s *Service) applyPendingChangeIfDue(user *models.User, now time.Time, periodEnd *time.Time) bool {
	if !user.HasPendingChange() {
		return false
	}
	if user.PlanChangeStatus != types.PlanChangeStatusCompleted {
		return false
	}
	if user.PendingTierEffectiveDate != nil && user.PendingTierEffectiveDate.After(now) {
		return false
	}

	user.ActiveTier = user.PendingTier
	user.ActiveLength = user.PendingActiveLength
	expiry := now.Add(30 * 24 * time.Hour)
	if user.PendingProductID != nil {
		if product := s.cfg.ResolveProduct(*user.PendingProductID); product != nil {
			expiry = product.ExpirationFor(periodEnd, now)
		}
	} else if periodEnd != nil {
		expiry = *periodEnd
	}
	user.TierExpiresAt = &expiry
	user.SubscriptionStatus = types.SubscriptionStatusActive
	user.ClearPendingChange()
	return true
}

// storePendingChange records the five pending fields together. Immediate
// upgrades wait for payment (PENDING); deferred moves are settled
// immediately (COMPLETED) and auto-apply at their effective date.
func (s *Service) storePendingChange(user *models.User, product *types.TierProduct, changeType types.PlanChangeType, now time.Time) {
	user.PendingTier = lo.ToPtr(product.Tier)
	user.PendingActiveLength = lo.ToPtr(product.BillingFrequency)
	user.PendingChangeType = lo.ToPtr(changeType)
	user.PendingProductID = lo.ToPtr(product.ProductID)
	user.PlanChangeInitiatedAt = lo.ToPtr(now)

	if changeType == types.PlanChangeTypeImmediateUpgrade {
		user.PlanChangeStatus = types.PlanChangeStatusPending
		user.PendingTierEffectiveDate = lo.ToPtr(now)
		return
	}

	user.PlanChangeStatus = types.PlanChangeStatusCompleted
	effective := now
	if user.TierExpiresAt != nil {
		effective = *user.TierExpiresAt
	}
	user.PendingTierEffectiveDate = lo.ToPtr(effective)
}

func (s *Service) hasPaymentInFlight(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND status IN ?", userID, []types.PaymentStatus{types.PaymentStatusPending, types.PaymentStatusProcessing}).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) hasPaymentInStatus(ctx context.Context, userID string, status types.PaymentStatus) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count > 0, err
}
