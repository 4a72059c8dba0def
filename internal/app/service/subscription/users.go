package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/pkg/logctx"
	"github.com/glasswing-io/tiergate/pkg/tool"
	"github.com/glasswing-io/tiergate/pkg/types"
)

// freeTierDuration is the far-future expiry given to users that never
// purchased anything.
const freeTierDuration = 100 * 365 * 24 * time.Hour

// EnsureUser returns the user with the given email, creating a free-tier
// record on first touch.
func (s *Service) EnsureUser(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	user = models.User{
		ID:            tool.GenerateUUIDV7(),
		Email:         email,
		ActiveTier:    lo.ToPtr(types.TierFree),
		TierExpiresAt: lo.ToPtr(time.Now().Add(freeTierDuration)),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("user_created", "user_id", user.ID)
	return &user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// findUser resolves a user by, in order: explicit user id from event
// metadata, customer email, provider customer id, subscription id. A nil
// return with nil error means no candidate matched; the caller drops the
// event after logging.
func (s *Service) findUser(ctx context.Context, metaUserID, email, customerID, subscriptionID string) (*models.User, error) {
	queries := []struct {
		cond  string
		value string
	}{
		{"id = ?", metaUserID},
		{"email = ?", email},
		{"provider_customer_id = ?", customerID},
		{"subscription_id = ?", subscriptionID},
	}

	for _, q := range queries {
		if q.value == "" {
			continue
		}
		var user models.User
		err := s.db.WithContext(ctx).Where(q.cond, q.value).First(&user).Error
		if err == nil {
			return &user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// saveUser persists the mutated user row and writes a tier change log entry
// asynchronously; log failures never fail the save.
func (s *Service) saveUser(ctx context.Context, before, after *models.User, reason types.TierChangeReason, extra map[string]any) error {
	if err := s.db.WithContext(ctx).Save(after).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	go func(b, a models.User) {
		if extra == nil {
			extra = map[string]any{}
		}
		row := &models.TierChangeLog{
			ID:     tool.GenerateUUIDV7(),
			UserID: a.ID,
			Reason: reason,
			Before: datatypes.NewJSONType(&b),
			After:  datatypes.NewJSONType(&a),
			Extra:  extra,
		}
		if err := s.db.Save(row).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save tier change log: %v", err)
		}
	}(*before, *after)

	return nil
}
