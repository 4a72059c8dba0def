package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/glasswing-io/tiergate/internal/app/service/checkout"
	"github.com/glasswing-io/tiergate/internal/app/service/subscription"
	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/internal/platform/provider"
	"github.com/glasswing-io/tiergate/pkg/config"
	"github.com/glasswing-io/tiergate/pkg/tool"
	"github.com/glasswing-io/tiergate/pkg/types"
)

type noopProvider struct{}

func (noopProvider) CreateCheckoutSession(context.Context, *provider.CreateCheckoutRequest) (*provider.CheckoutSession, error) {
	return nil, provider.ErrSessionNotFound
}
func (noopProvider) GetCheckoutSession(context.Context, string) (*provider.CheckoutSession, error) {
	return nil, provider.ErrSessionNotFound
}
func (noopProvider) ChangePlan(context.Context, string, *provider.ChangePlanRequest) error {
	return nil
}
func (noopProvider) CancelSubscription(context.Context, string, bool) error { return nil }
func (noopProvider) PaymentMethodUpdateLink(context.Context, string) (string, error) {
	return "", nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.CheckoutSession{}, &models.Payment{}, &models.TierChangeLog{},
	))

	cfg := &config.Config{
		Reconciler: config.ReconcilerConfig{IntervalMinutes: 5, SessionTimeoutMinutes: 30, GraceDays: 7},
		Products: []*types.TierProduct{
			{ProductID: "prod_basic_m", Tier: types.TierBasic, BillingFrequency: types.BillingFrequencyMonthly, DurationDays: 30},
			{ProductID: "prod_pro_m", Tier: types.TierProfessional, BillingFrequency: types.BillingFrequencyMonthly, DurationDays: 30},
		},
	}
	log := zap.NewNop().Sugar()
	pc := noopProvider{}
	sessions := checkout.NewService(cfg, db, pc, log)
	subs := subscription.NewService(cfg, db, pc, sessions, log)
	return NewService(cfg, db, subs, log), db
}

func seedExpiringUser(t *testing.T, db *gorm.DB, status types.SubscriptionStatus, expiredFor time.Duration) *models.User {
	t.Helper()
	user := &models.User{
		ID:                 tool.GenerateUUIDV7(),
		Email:              tool.GenerateUUIDV7() + "@example.com",
		ActiveTier:         lo.ToPtr(types.TierBasic),
		TierExpiresAt:      lo.ToPtr(time.Now().Add(-expiredFor)),
		SubscriptionStatus: status,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func status(t *testing.T, db *gorm.DB, userID string) types.SubscriptionStatus {
	t.Helper()
	var user models.User
	require.NoError(t, db.Where("id = ?", userID).First(&user).Error)
	return user.SubscriptionStatus
}

func TestExpireStaleSessions(t *testing.T) {
	svc, db := newTestService(t)

	stale := &models.CheckoutSession{
		ID:                tool.GenerateUUIDV7(),
		ProviderSessionID: "cs_stale",
		UserID:            tool.GenerateUUIDV7(),
		Status:            types.SessionStatusPending,
		Mode:              types.SessionModeSubscription,
		RequestedTier:     types.TierBasic,
		RequestedProduct:  "prod_basic_m",
		CreatedDate:       time.Now().Add(-45 * time.Minute),
	}
	fresh := &models.CheckoutSession{
		ID:                tool.GenerateUUIDV7(),
		ProviderSessionID: "cs_fresh",
		UserID:            tool.GenerateUUIDV7(),
		Status:            types.SessionStatusPending,
		Mode:              types.SessionModeSubscription,
		RequestedTier:     types.TierBasic,
		RequestedProduct:  "prod_basic_m",
		CreatedDate:       time.Now().Add(-5 * time.Minute),
	}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Create(fresh).Error)

	n, err := svc.ExpireStaleSessions(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var reloaded models.CheckoutSession
	require.NoError(t, db.Where("id = ?", stale.ID).First(&reloaded).Error)
	require.Equal(t, types.SessionStatusExpired, reloaded.Status)
	reloaded = models.CheckoutSession{}
	require.NoError(t, db.Where("id = ?", fresh.ID).First(&reloaded).Error)
	require.Equal(t, types.SessionStatusPending, reloaded.Status)
}

func TestSweepGraceAndExpiry(t *testing.T) {
	svc, db := newTestService(t)
	grace := 7 * 24 * time.Hour

	failedRecent := seedExpiringUser(t, db, types.SubscriptionStatusFailed, 6*24*time.Hour)
	failedOld := seedExpiringUser(t, db, types.SubscriptionStatusFailed, 8*24*time.Hour)
	graceOld := seedExpiringUser(t, db, types.SubscriptionStatusGrace, 8*24*time.Hour)
	activeOld := seedExpiringUser(t, db, types.SubscriptionStatusActive, 8*24*time.Hour)
	expiredOld := seedExpiringUser(t, db, types.SubscriptionStatusExpired, 10*24*time.Hour)

	graced, lapsed, err := svc.SweepGraceAndExpiry(context.Background(), grace)
	require.NoError(t, err)
	require.EqualValues(t, 1, graced)
	require.EqualValues(t, 2, lapsed)

	require.Equal(t, types.SubscriptionStatusGrace, status(t, db, failedRecent.ID))
	require.Equal(t, types.SubscriptionStatusExpired, status(t, db, failedOld.ID))
	require.Equal(t, types.SubscriptionStatusExpired, status(t, db, graceOld.ID))
	// ACTIVE and EXPIRED users are never touched.
	require.Equal(t, types.SubscriptionStatusActive, status(t, db, activeOld.ID))
	require.Equal(t, types.SubscriptionStatusExpired, status(t, db, expiredOld.ID))
}

func TestSweepGraceAndExpiry_GraceUserWithinWindowStaysGrace(t *testing.T) {
	svc, db := newTestService(t)
	user := seedExpiringUser(t, db, types.SubscriptionStatusGrace, 3*24*time.Hour)

	graced, lapsed, err := svc.SweepGraceAndExpiry(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Zero(t, graced)
	require.Zero(t, lapsed)
	require.Equal(t, types.SubscriptionStatusGrace, status(t, db, user.ID))
}

func TestApplyDuePendingChanges(t *testing.T) {
	svc, db := newTestService(t)

	due := &models.User{
		ID:                       tool.GenerateUUIDV7(),
		Email:                    "due@example.com",
		ActiveTier:               lo.ToPtr(types.TierBasic),
		ActiveLength:             lo.ToPtr(types.BillingFrequencyMonthly),
		TierExpiresAt:            lo.ToPtr(time.Now().Add(-time.Hour)),
		SubscriptionStatus:       types.SubscriptionStatusActive,
		PlanChangeStatus:         types.PlanChangeStatusCompleted,
		PendingTier:              lo.ToPtr(types.TierProfessional),
		PendingActiveLength:      lo.ToPtr(types.BillingFrequencyMonthly),
		PendingTierEffectiveDate: lo.ToPtr(time.Now().Add(-time.Hour)),
		PendingChangeType:        lo.ToPtr(types.PlanChangeTypeImmediateUpgrade),
		PendingProductID:         lo.ToPtr("prod_pro_m"),
	}
	notConfirmed := &models.User{
		ID:                       tool.GenerateUUIDV7(),
		Email:                    "unconfirmed@example.com",
		ActiveTier:               lo.ToPtr(types.TierBasic),
		PlanChangeStatus:         types.PlanChangeStatusPending,
		PendingTier:              lo.ToPtr(types.TierProfessional),
		PendingTierEffectiveDate: lo.ToPtr(time.Now().Add(-time.Hour)),
	}
	require.NoError(t, db.Create(due).Error)
	require.NoError(t, db.Create(notConfirmed).Error)

	applied, err := svc.ApplyDuePendingChanges(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, applied)

	var reloaded models.User
	require.NoError(t, db.Where("id = ?", due.ID).First(&reloaded).Error)
	require.Equal(t, types.TierProfessional, reloaded.Tier())
	require.False(t, reloaded.HasPendingChange())

	reloaded = models.User{}
	require.NoError(t, db.Where("id = ?", notConfirmed.ID).First(&reloaded).Error)
	require.Equal(t, types.TierBasic, reloaded.Tier())
	require.True(t, reloaded.HasPendingChange())
}

func TestStartStop_Singleton(t *testing.T) {
	svc, _ := newTestService(t)
	cfg := Config{Interval: time.Hour, SessionTimeout: 30 * time.Minute, GraceWindow: 7 * 24 * time.Hour}

	require.False(t, svc.IsRunning())
	svc.Start(cfg)
	require.True(t, svc.IsRunning())

	// Second start is a no-op, not a second loop.
	svc.Start(cfg)
	require.True(t, svc.IsRunning())

	svc.Stop()
	require.False(t, svc.IsRunning())
	// Stop when stopped is safe.
	svc.Stop()
}

func TestRunOnce_SweepsAreIndependent(t *testing.T) {
	svc, db := newTestService(t)
	user := seedExpiringUser(t, db, types.SubscriptionStatusFailed, 8*24*time.Hour)

	svc.RunOnce(context.Background(), Config{SessionTimeout: 30 * time.Minute, GraceWindow: 7 * 24 * time.Hour})
	require.Equal(t, types.SubscriptionStatusExpired, status(t, db, user.ID))
}
