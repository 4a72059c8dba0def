package models

import (
	"time"

	"github.com/glasswing-io/tiergate/pkg/types"
)

// User is the single per-end-user record holding tier, subscription status
// and any in-flight plan change. Mutated only by webhook event handlers and
// the reconciler.
type User struct {
	ID                 string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email              string  `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	ProviderCustomerID *string `gorm:"column:provider_customer_id;type:varchar(128);index" json:"provider_customer_id"`

	// ActiveTier is nil for free users. Non-nil implies TierExpiresAt set.
	ActiveTier         *types.Tier              `gorm:"column:active_tier;type:varchar(32)" json:"active_tier"`
	ActiveLength       *types.BillingFrequency  `gorm:"column:active_length;type:varchar(16)" json:"active_length"`
	TierExpiresAt      *time.Time               `gorm:"column:tier_expires_at;default:null" json:"tier_expires_at"`
	SubscriptionStatus types.SubscriptionStatus `gorm:"column:subscription_status;type:varchar(32);default:''" json:"subscription_status"`
	SubscriptionID     *string                  `gorm:"column:subscription_id;type:varchar(128);index" json:"subscription_id"`

	// Plan-change fields: either none of the pending fields are set, or all
	// of them are set together.
	PlanChangeStatus         types.PlanChangeStatus   `gorm:"column:plan_change_status;type:varchar(32);default:''" json:"plan_change_status"`
	PendingTier              *types.Tier              `gorm:"column:pending_tier;type:varchar(32)" json:"pending_tier"`
	PendingActiveLength      *types.BillingFrequency  `gorm:"column:pending_active_length;type:varchar(16)" json:"pending_active_length"`
	PendingTierEffectiveDate *time.Time               `gorm:"column:pending_tier_effective_date;default:null" json:"pending_tier_effective_date"`
	PendingChangeType        *types.PlanChangeType    `gorm:"column:pending_change_type;type:varchar(40)" json:"pending_change_type"`
	PendingProductID         *string                  `gorm:"column:pending_product_id;type:varchar(128)" json:"pending_product_id"`
	PlanChangeInitiatedAt    *time.Time               `gorm:"column:plan_change_initiated_at;default:null" json:"plan_change_initiated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "app_user" }

// Tier returns the effective tier code, FREE when none is set.
func (u *User) Tier() types.Tier {
	if u == nil || u.ActiveTier == nil {
		return types.TierFree
	}
	return *u.ActiveTier
}

// Frequency returns the active billing frequency, defaulting to monthly
// for classification purposes when unset.
func (u *User) Frequency() types.BillingFrequency {
	if u == nil || u.ActiveLength == nil {
		return types.BillingFrequencyMonthly
	}
	return *u.ActiveLength
}

func (u *User) HasPendingChange() bool {
	return u != nil && u.PendingTier != nil
}

// ClearPendingChange resets every pending plan-change field.
func (u *User) ClearPendingChange() {
	u.PlanChangeStatus = types.PlanChangeStatusNone
	u.PendingTier = nil
	u.PendingActiveLength = nil
	u.PendingTierEffectiveDate = nil
	u.PendingChangeType = nil
	u.PendingProductID = nil
	u.PlanChangeInitiatedAt = nil
}
