package statistics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/pkg/types"
)

// Overview is the live operational picture exposed for monitoring.
type Overview struct {
	PendingSessions  int64 `json:"pending_sessions"`
	GracePeriodUsers int64 `json:"grace_period_users"`
	ExpiredUsers     int64 `json:"expired_users"`
	ActiveUsers      int64 `json:"active_users"`
	PendingChanges   int64 `json:"pending_plan_changes"`
	AsOf             time.Time `json:"as_of"`
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// GetOverview counts the records the reconciler cares about.
func (s *Service) GetOverview(ctx context.Context) (*Overview, error) {
	out := &Overview{AsOf: time.Now()}

	counts := []struct {
		dst   *int64
		model any
		cond  string
		args  []any
	}{
		{&out.PendingSessions, &models.CheckoutSession{}, "status = ?", []any{types.SessionStatusPending}},
		{&out.GracePeriodUsers, &models.User{}, "subscription_status = ?", []any{types.SubscriptionStatusGrace}},
		{&out.ExpiredUsers, &models.User{}, "subscription_status = ?", []any{types.SubscriptionStatusExpired}},
		{&out.ActiveUsers, &models.User{}, "subscription_status = ?", []any{types.SubscriptionStatusActive}},
		{&out.PendingChanges, &models.User{}, "plan_change_status = ?", []any{types.PlanChangeStatusPending}},
	}

	for _, c := range counts {
		if err := s.db.WithContext(ctx).Model(c.model).Where(c.cond, c.args...).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
