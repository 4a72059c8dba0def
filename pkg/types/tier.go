package types

import "time"

type Tier string

const (
	TierFree         Tier = "FREE"
	TierBasic        Tier = "BASIC"
	TierProfessional Tier = "PROFESSIONAL"
	TierPro          Tier = "PRO"
	TierBusiness     Tier = "BUSINESS"
	TierEnterprise   Tier = "ENTERPRISE"
)

// tierLevels defines the ordering used for plan-change classification.
// Synonyms share a level and are treated as equivalent.
var tierLevels = map[Tier]int{
	TierFree:         0,
	TierBasic:        1,
	TierProfessional: 2,
	TierPro:          2,
	TierBusiness:     3,
	TierEnterprise:   3,
}

// Level returns the numeric ordering level of the tier.
// Unknown tier codes are treated as free level.
func (t Tier) Level() int {
	if lvl, ok := tierLevels[t]; ok {
		return lvl
	}
	return 0
}

type BillingFrequency string

const (
	BillingFrequencyMonthly BillingFrequency = "MONTHLY"
	BillingFrequencyYearly  BillingFrequency = "YEARLY"
)

type PlanChangeType string

const (
	PlanChangeTypeImmediateUpgrade        PlanChangeType = "IMMEDIATE_UPGRADE"
	PlanChangeTypeDeferredDowngrade       PlanChangeType = "DEFERRED_DOWNGRADE"
	PlanChangeTypeDeferredFrequencyChange PlanChangeType = "DEFERRED_FREQUENCY_CHANGE"
	PlanChangeTypeNoChange                PlanChangeType = "NO_CHANGE"
)

// DetermineChangeType classifies a tier/frequency move. A strictly higher
// level is an immediate upgrade, a strictly lower level a deferred
// downgrade, the same level with a different billing frequency a deferred
// frequency change, anything else no change.
func DetermineChangeType(currentTier, targetTier Tier, currentFreq, targetFreq BillingFrequency) PlanChangeType {
	cur, tgt := currentTier.Level(), targetTier.Level()
	switch {
	case tgt > cur:
		return PlanChangeTypeImmediateUpgrade
	case tgt < cur:
		return PlanChangeTypeDeferredDowngrade
	case currentFreq != targetFreq:
		return PlanChangeTypeDeferredFrequencyChange
	default:
		return PlanChangeTypeNoChange
	}
}

// TierProduct maps a provider product identifier to a tier, its billing
// frequency and the default entitlement duration. Loaded from config at
// process start.
type TierProduct struct {
	ProductID        string           `json:"product_id" mapstructure:"product_id"`
	Tier             Tier             `json:"tier" mapstructure:"tier"`
	BillingFrequency BillingFrequency `json:"billing_frequency" mapstructure:"billing_frequency"`
	DurationDays     int              `json:"duration_days" mapstructure:"duration_days"`
}

// ExpirationFor computes the entitlement expiry for this product. The
// provider-supplied period end wins when present; otherwise the default
// duration is added to now.
func (p *TierProduct) ExpirationFor(explicitPeriodEnd *time.Time, now time.Time) time.Time {
	if explicitPeriodEnd != nil && !explicitPeriodEnd.IsZero() {
		return *explicitPeriodEnd
	}
	return now.Add(time.Duration(p.DurationDays) * 24 * time.Hour)
}
