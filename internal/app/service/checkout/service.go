package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/glasswing-io/tiergate/internal/models"
	"github.com/glasswing-io/tiergate/internal/platform/provider"
	"github.com/glasswing-io/tiergate/pkg/config"
	"github.com/glasswing-io/tiergate/pkg/logctx"
	"github.com/glasswing-io/tiergate/pkg/tool"
	"github.com/glasswing-io/tiergate/pkg/types"
)

// Service owns checkout-session correlation: which user/session a provider
// event belongs to, and reuse of in-flight checkout attempts.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	provider provider.Client
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, pc provider.Client, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, provider: pc, log: log}
}

// InitiateCheckout returns a checkout session for the user, reusing a fresh
// pending one when possible. A stale pending session is checked against the
// provider first: still open means reuse, a completed payment or a vanished
// session closes the local row and a new session is created.
func (s *Service) InitiateCheckout(ctx context.Context, user *models.User, productID string) (*models.CheckoutSession, error) {
	product := s.cfg.ResolveProduct(productID)
	if product == nil {
		return nil, fmt.Errorf("unknown product: %s", productID)
	}

	existing, err := s.latestPendingSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.Fresh(time.Now(), s.cfg.SessionFreshness()) {
			return existing, nil
		}

		// Stale: the provider holds the truth now. No lock is held across
		// this outbound call.
		remote, err := s.provider.GetCheckoutSession(ctx, existing.ProviderSessionID)
		switch {
		case errors.Is(err, provider.ErrSessionNotFound):
			if markErr := s.markStatus(ctx, existing.ID, types.SessionStatusExpired, nil, nil); markErr != nil {
				return nil, markErr
			}
		case err != nil:
			// Transient provider failure; the session may still be open, so
			// it is not expired locally.
			return nil, fmt.Errorf("failed to check provider session: %w", err)
		case remote.HasCompletedPayment():
			if markErr := s.markStatus(ctx, existing.ID, types.SessionStatusCompleted, lo.ToPtr(remote.PaymentID), nil); markErr != nil {
				return nil, markErr
			}
		default:
			// Still open upstream, keep reusing it.
			return existing, nil
		}
	}

	remote, err := s.provider.CreateCheckoutSession(ctx, &provider.CreateCheckoutRequest{
		ProductID:     productID,
		CustomerEmail: user.Email,
		Metadata:      map[string]string{"user_id": user.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider checkout: %w", err)
	}

	session := &models.CheckoutSession{
		ID:                tool.GenerateUUIDV7(),
		ProviderSessionID: remote.SessionID,
		UserID:            user.ID,
		Status:            types.SessionStatusPending,
		Mode:              types.SessionModeSubscription,
		RequestedTier:     product.Tier,
		RequestedProduct:  productID,
		CheckoutURL:       remote.CheckoutURL,
		CreatedDate:       time.Now(),
		ExpiresAt:         lo.ToPtr(time.Now().Add(s.cfg.SessionTimeout())),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("checkout_session_created",
		"user_id", user.ID, "provider_session_id", remote.SessionID, "tier", product.Tier)
	return session, nil
}

// Correlate resolves the session a payment/subscription event belongs to:
// explicit session id from event metadata first, then a session already
// bearing the subscription id, then the user's latest pending session.
// No match is not an error.
func (s *Service) Correlate(ctx context.Context, userID, metaSessionID, subscriptionID string) (*models.CheckoutSession, error) {
	if metaSessionID != "" {
		session, err := s.GetByProviderID(ctx, metaSessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if subscriptionID != "" {
		var session models.CheckoutSession
		err := s.db.WithContext(ctx).
			Where("subscription_id = ?", subscriptionID).
			Order("created_date desc").
			First(&session).Error
		if err == nil {
			return &session, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if userID != "" {
		return s.latestPendingSession(ctx, userID)
	}
	return nil, nil
}

// Complete moves a pending session to COMPLETED, recording the payment and
// subscription identifiers. Terminal sessions are left untouched: the WHERE
// guard makes replayed webhooks a no-op.
func (s *Service) Complete(ctx context.Context, sessionID string, paymentID, subscriptionID *string) error {
	updates := map[string]any{
		"status":       types.SessionStatusCompleted,
		"completed_at": time.Now(),
	}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	if subscriptionID != nil {
		updates["subscription_id"] = *subscriptionID
	}
	return s.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", sessionID, types.SessionStatusPending).
		Updates(updates).Error
}

// MarkFailed moves a pending session to FAILED.
func (s *Service) MarkFailed(ctx context.Context, sessionID string) error {
	return s.markStatus(ctx, sessionID, types.SessionStatusFailed, nil, nil)
}

// ExpireByProviderID moves a pending session to EXPIRED, keyed by the
// provider's session identifier.
func (s *Service) ExpireByProviderID(ctx context.Context, providerSessionID string) error {
	return s.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("provider_session_id = ? AND status = ?", providerSessionID, types.SessionStatusPending).
		Update("status", types.SessionStatusExpired).Error
}

// AttachSubscription records the subscription id on a session without
// changing its status.
func (s *Service) AttachSubscription(ctx context.Context, sessionID, subscriptionID string) error {
	return s.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("id = ?", sessionID).
		Update("subscription_id", subscriptionID).Error
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Service) GetByProviderID(ctx context.Context, providerSessionID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := s.db.WithContext(ctx).Where("provider_session_id = ?", providerSessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Resync re-reads a session from the provider and reconciles the local row
// against provider truth.
func (s *Service) Resync(ctx context.Context, providerSessionID string) (*models.CheckoutSession, error) {
	local, err := s.GetByProviderID(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}

	remote, err := s.provider.GetCheckoutSession(ctx, providerSessionID)
	switch {
	case errors.Is(err, provider.ErrSessionNotFound):
		if markErr := s.markStatus(ctx, local.ID, types.SessionStatusExpired, nil, nil); markErr != nil {
			return nil, markErr
		}
	case err != nil:
		return nil, fmt.Errorf("provider lookup failed: %w", err)
	case remote.HasCompletedPayment():
		var subID *string
		if remote.SubscriptionID != "" {
			subID = lo.ToPtr(remote.SubscriptionID)
		}
		if markErr := s.Complete(ctx, local.ID, lo.ToPtr(remote.PaymentID), subID); markErr != nil {
			return nil, markErr
		}
	}

	return s.GetByID(ctx, local.ID)
}

func (s *Service) latestPendingSession(ctx context.Context, userID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.SessionStatusPending).
		Order("created_date desc").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Service) markStatus(ctx context.Context, sessionID string, status types.SessionStatus, paymentID, subscriptionID *string) error {
	updates := map[string]any{"status": status}
	if status == types.SessionStatusCompleted {
		updates["completed_at"] = time.Now()
	}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	if subscriptionID != nil {
		updates["subscription_id"] = *subscriptionID
	}
	return s.db.WithContext(ctx).Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", sessionID, types.SessionStatusPending).
		Updates(updates).Error
}
