package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/glasswing-io/tiergate/pkg/types"
)

// Payment mirrors one provider payment attempt. The provider payment id is
// the idempotency key: repeated webhooks for the same id upsert this row.
type Payment struct {
	ID                string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ProviderPaymentID string              `gorm:"column:provider_payment_id;type:varchar(128);not null;uniqueIndex" json:"provider_payment_id"`
	UserID            string              `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Status            types.PaymentStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Amount            int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency          string              `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	// Tier is the best-known tier this payment relates to.
	Tier                   *types.Tier    `gorm:"column:tier;type:varchar(32)" json:"tier"`
	ProviderSubscriptionID *string        `gorm:"column:provider_subscription_id;type:varchar(128);index" json:"provider_subscription_id"`
	PaymentLink            *string        `gorm:"column:payment_link;type:text" json:"payment_link"`
	PaidAt                 *time.Time     `gorm:"column:paid_at;default:null" json:"paid_at"`
	Raw                    datatypes.JSON `gorm:"column:raw;type:jsonb" json:"raw"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

func (Payment) TableName() string { return "payment" }

// InFlight reports whether the payment is still awaiting a terminal state.
func (p *Payment) InFlight() bool {
	return p != nil && (p.Status == types.PaymentStatusPending || p.Status == types.PaymentStatusProcessing)
}
