package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/internal/platform/provider"
	"github.com/glasswing-io/tiergate/pkg/tool"
	"github.com/glasswing-io/tiergate/pkg/types"
)

func activeBasic(u *models.User) {
	u.ActiveTier = lo.ToPtr(types.TierBasic)
	u.ActiveLength = lo.ToPtr(types.BillingFrequencyMonthly)
	u.TierExpiresAt = lo.ToPtr(time.Now().Add(20 * 24 * time.Hour))
	u.SubscriptionStatus = types.SubscriptionStatusActive
	u.SubscriptionID = lo.ToPtr("sub_1")
}

func TestChangePlan_ImmediateUpgradeStaysPending(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	result, err := svc.ChangePlan(context.Background(), user.ID, "prod_pro_m")
	require.NoError(t, err)
	require.Equal(t, types.PlanChangeTypeImmediateUpgrade, result.ChangeType)
	require.Equal(t, types.PlanChangeStatusPending, result.Status)
	require.True(t, result.RequiresPayment)

	require.Len(t, pc.changePlanCalls, 1)
	require.Equal(t, provider.ProrationImmediate, pc.changePlanCalls[0].ProrationMode)

	after := reload(t, db, user.ID)
	require.Equal(t, types.TierBasic, after.Tier())
	require.Equal(t, types.PlanChangeStatusPending, after.PlanChangeStatus)
	require.Equal(t, types.TierProfessional, *after.PendingTier)
	require.Equal(t, "prod_pro_m", *after.PendingProductID)
}

func TestChangePlan_DeferredDowngradeCompletesImmediately(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, func(u *models.User) {
		activeBasic(u)
		u.ActiveTier = lo.ToPtr(types.TierBusiness)
	})

	result, err := svc.ChangePlan(context.Background(), user.ID, "prod_basic_m")
	require.NoError(t, err)
	require.Equal(t, types.PlanChangeTypeDeferredDowngrade, result.ChangeType)
	require.Equal(t, types.PlanChangeStatusCompleted, result.Status)
	require.False(t, result.RequiresPayment)

	require.Len(t, pc.changePlanCalls, 1)
	require.NotEqual(t, provider.ProrationImmediate, pc.changePlanCalls[0].ProrationMode)

	after := reload(t, db, user.ID)
	// Effective at the end of the paid period, not now.
	require.WithinDuration(t, *user.TierExpiresAt, *after.PendingTierEffectiveDate, time.Second)
	require.Equal(t, types.TierBusiness, after.Tier())
}

func TestChangePlan_FrequencyChangeIsDeferred(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	result, err := svc.ChangePlan(context.Background(), user.ID, "prod_basic_y")
	require.NoError(t, err)
	require.Equal(t, types.PlanChangeTypeDeferredFrequencyChange, result.ChangeType)
	require.Equal(t, types.PlanChangeStatusCompleted, result.Status)
}

func TestChangePlan_NoChangeShortCircuits(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	result, err := svc.ChangePlan(context.Background(), user.ID, "prod_basic_m")
	require.NoError(t, err)
	require.Equal(t, types.PlanChangeTypeNoChange, result.ChangeType)
	require.Empty(t, pc.changePlanCalls)

	after := reload(t, db, user.ID)
	require.False(t, after.HasPendingChange())
}

func TestChangePlan_ConflictWhenChangeAlreadyPending(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, pendingUpgrade)

	_, err := svc.ChangePlan(context.Background(), user.ID, "prod_biz_m")
	require.ErrorIs(t, err, ErrChangeAlreadyPending)
}

func TestChangePlan_ConflictWhenPaymentInFlight(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, activeBasic)
	require.NoError(t, db.Create(&models.Payment{
		ID:                tool.GenerateUUIDV7(),
		ProviderPaymentID: "pay_inflight",
		UserID:            user.ID,
		Status:            types.PaymentStatusProcessing,
		Amount:            1500,
		Currency:          "USD",
	}).Error)

	_, err := svc.ChangePlan(context.Background(), user.ID, "prod_pro_m")
	require.ErrorIs(t, err, ErrPaymentInFlight)
}

func TestChangePlan_NoSubscription(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, func(u *models.User) {
		activeBasic(u)
		u.SubscriptionID = nil
	})

	_, err := svc.ChangePlan(context.Background(), user.ID, "prod_pro_m")
	require.ErrorIs(t, err, ErrNoSubscription)
}

func TestChangePlan_UnknownProduct(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	_, err := svc.ChangePlan(context.Background(), user.ID, "prod_nope")
	require.ErrorIs(t, err, ErrUnknownProduct)
}

func TestPreviewChange_HasNoSideEffects(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	result, err := svc.PreviewChange(context.Background(), user.ID, "prod_pro_m")
	require.NoError(t, err)
	require.Equal(t, types.PlanChangeTypeImmediateUpgrade, result.ChangeType)
	require.True(t, result.RequiresPayment)
	require.Empty(t, pc.changePlanCalls)

	after := reload(t, db, user.ID)
	require.False(t, after.HasPendingChange())
}

func TestPreviewChange_DowngradeCarriesEffectiveDate(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, func(u *models.User) {
		activeBasic(u)
		u.ActiveTier = lo.ToPtr(types.TierBusiness)
	})

	result, err := svc.PreviewChange(context.Background(), user.ID, "prod_basic_m")
	require.NoError(t, err)
	require.Equal(t, types.PlanChangeTypeDeferredDowngrade, result.ChangeType)
	require.NotNil(t, result.EffectiveDate)
	require.WithinDuration(t, *user.TierExpiresAt, *result.EffectiveDate, time.Second)
}

func TestCancelPendingChange_ClearsAndRevertsProvider(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, pendingUpgrade)

	require.NoError(t, svc.CancelPendingChange(context.Background(), user.ID))

	after := reload(t, db, user.ID)
	require.False(t, after.HasPendingChange())
	require.Equal(t, types.PlanChangeStatusNone, after.PlanChangeStatus)
	require.Equal(t, types.TierBasic, after.Tier())

	// Provider was asked to switch back to the current product.
	require.Len(t, pc.changePlanCalls, 1)
	require.Equal(t, "prod_basic_m", pc.changePlanCalls[0].ProductID)
}

func TestCancelPendingChange_NothingPendingIsNoOp(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	require.NoError(t, svc.CancelPendingChange(context.Background(), user.ID))
	require.Empty(t, pc.changePlanCalls)
}

func TestRetryPayment_ReturnsProviderLink(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, func(u *models.User) {
		activeBasic(u)
		u.SubscriptionStatus = types.SubscriptionStatusOnHold
	})

	link, err := svc.RetryPayment(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, link)
}

func TestRetryPayment_ConflictWhileProcessing(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, activeBasic)
	require.NoError(t, db.Create(&models.Payment{
		ID:                tool.GenerateUUIDV7(),
		ProviderPaymentID: "pay_proc",
		UserID:            user.ID,
		Status:            types.PaymentStatusProcessing,
		Amount:            1500,
		Currency:          "USD",
	}).Error)

	_, err := svc.RetryPayment(context.Background(), user.ID)
	require.ErrorIs(t, err, ErrPaymentInFlight)
}

func TestCancelSubscription_DelegatesToProvider(t *testing.T) {
	svc, pc, db := newTestService(t)
	user := seedUser(t, db, activeBasic)

	require.NoError(t, svc.CancelSubscription(context.Background(), user.ID))
	require.Equal(t, 1, pc.cancelCalls)

	// Local state is untouched until the webhook arrives.
	after := reload(t, db, user.ID)
	require.Equal(t, types.SubscriptionStatusActive, after.SubscriptionStatus)
}

func TestApplyPendingChangeIfDue_RefusesUnconfirmedPayment(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, pendingUpgrade)

	applied, err := svc.ApplyPendingChangeIfDue(context.Background(), user, time.Now())
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, types.TierBasic, user.Tier())
}

func TestApplyPendingChangeIfDue_RefusesFutureEffectiveDate(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, func(u *models.User) {
		pendingUpgrade(u)
		u.PlanChangeStatus = types.PlanChangeStatusCompleted
		u.PendingTierEffectiveDate = lo.ToPtr(time.Now().Add(10 * 24 * time.Hour))
	})

	applied, err := svc.ApplyPendingChangeIfDue(context.Background(), user, time.Now())
	require.NoError(t, err)
	require.False(t, applied)
}

func TestApplyPendingChangeIfDue_AppliesAndPersists(t *testing.T) {
	svc, _, db := newTestService(t)
	user := seedUser(t, db, func(u *models.User) {
		pendingUpgrade(u)
		u.PlanChangeStatus = types.PlanChangeStatusCompleted
	})

	applied, err := svc.ApplyPendingChangeIfDue(context.Background(), user, time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	after := reload(t, db, user.ID)
	require.Equal(t, types.TierProfessional, after.Tier())
	require.Equal(t, types.SubscriptionStatusActive, after.SubscriptionStatus)
	require.False(t, after.HasPendingChange())
	require.NotNil(t, after.TierExpiresAt)
	require.True(t, after.TierExpiresAt.After(time.Now().Add(29*24*time.Hour)))
}
