package models

import (
	"time"

	"github.com/glasswing-io/tiergate/pkg/types"
)

// CheckoutSession tracks one provider-hosted checkout attempt until it
// resolves to a payment/subscription or expires. PENDING is the only
// non-terminal status.
type CheckoutSession struct {
	ID                string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderSessionID string             `gorm:"column:provider_session_id;type:varchar(128);not null;uniqueIndex" json:"provider_session_id"`
	UserID            string             `gorm:"column:user_id;type:uuid;not null;index:idx_session_user_created,priority:1" json:"user_id"`
	Status            types.SessionStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Mode              types.SessionMode  `gorm:"column:mode;type:varchar(32);not null" json:"mode"`
	RequestedTier     types.Tier         `gorm:"column:requested_tier;type:varchar(32);not null" json:"requested_tier"`
	RequestedProduct  string             `gorm:"column:requested_product;type:varchar(128);not null" json:"requested_product"`
	CheckoutURL       string             `gorm:"column:checkout_url;type:text" json:"checkout_url"`
	PaymentID         *string            `gorm:"column:payment_id;type:varchar(128)" json:"payment_id"`
	SubscriptionID    *string            `gorm:"column:subscription_id;type:varchar(128);index" json:"subscription_id"`
	CreatedDate       time.Time          `gorm:"column:created_date;not null;index:idx_session_user_created,priority:2,sort:desc" json:"created_date"`
	CompletedAt       *time.Time         `gorm:"column:completed_at;default:null" json:"completed_at"`
	ExpiresAt         *time.Time         `gorm:"column:expires_at;default:null" json:"expires_at"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (CheckoutSession) TableName() string { return "checkout_session" }

// Fresh reports whether a pending session is still young enough to reuse
// without consulting the provider.
func (s *CheckoutSession) Fresh(now time.Time, window time.Duration) bool {
	return s != nil && s.Status == types.SessionStatusPending && now.Sub(s.CreatedDate) < window
}
