package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTierLevel_Ordering(t *testing.T) {
	require.Less(t, TierFree.Level(), TierBasic.Level())
	require.Less(t, TierBasic.Level(), TierProfessional.Level())
	require.Less(t, TierProfessional.Level(), TierBusiness.Level())
}

func TestTierLevel_Synonyms(t *testing.T) {
	require.Equal(t, TierProfessional.Level(), TierPro.Level())
	require.Equal(t, TierBusiness.Level(), TierEnterprise.Level())
}

func TestTierLevel_UnknownIsFree(t *testing.T) {
	require.Equal(t, TierFree.Level(), Tier("PLATINUM").Level())
}

func TestDetermineChangeType(t *testing.T) {
	cases := []struct {
		name        string
		currentTier Tier
		targetTier  Tier
		currentFreq BillingFrequency
		targetFreq  BillingFrequency
		want        PlanChangeType
	}{
		{"upgrade", TierBasic, TierProfessional, BillingFrequencyMonthly, BillingFrequencyMonthly, PlanChangeTypeImmediateUpgrade},
		{"upgrade from free", TierFree, TierBasic, BillingFrequencyMonthly, BillingFrequencyMonthly, PlanChangeTypeImmediateUpgrade},
		{"downgrade", TierBusiness, TierBasic, BillingFrequencyYearly, BillingFrequencyYearly, PlanChangeTypeDeferredDowngrade},
		{"frequency change", TierBasic, TierBasic, BillingFrequencyMonthly, BillingFrequencyYearly, PlanChangeTypeDeferredFrequencyChange},
		{"no change", TierBasic, TierBasic, BillingFrequencyMonthly, BillingFrequencyMonthly, PlanChangeTypeNoChange},
		{"synonym move is no change", TierPro, TierProfessional, BillingFrequencyMonthly, BillingFrequencyMonthly, PlanChangeTypeNoChange},
		{"synonym move with frequency change", TierEnterprise, TierBusiness, BillingFrequencyMonthly, BillingFrequencyYearly, PlanChangeTypeDeferredFrequencyChange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetermineChangeType(tc.currentTier, tc.targetTier, tc.currentFreq, tc.targetFreq)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDetermineChangeType_Antisymmetry(t *testing.T) {
	// If A->B is an upgrade, B->A must be a downgrade.
	up := DetermineChangeType(TierBasic, TierEnterprise, BillingFrequencyMonthly, BillingFrequencyMonthly)
	down := DetermineChangeType(TierEnterprise, TierBasic, BillingFrequencyMonthly, BillingFrequencyMonthly)
	require.Equal(t, PlanChangeTypeImmediateUpgrade, up)
	require.Equal(t, PlanChangeTypeDeferredDowngrade, down)
}

func TestExpirationFor_ExplicitPeriodEndWins(t *testing.T) {
	p := &TierProduct{ProductID: "prod_basic_m", Tier: TierBasic, BillingFrequency: BillingFrequencyMonthly, DurationDays: 30}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(45 * 24 * time.Hour)

	require.Equal(t, end, p.ExpirationFor(&end, now))
}

func TestExpirationFor_FallsBackToDuration(t *testing.T) {
	p := &TierProduct{ProductID: "prod_basic_y", Tier: TierBasic, BillingFrequency: BillingFrequencyYearly, DurationDays: 365}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, now.Add(365*24*time.Hour), p.ExpirationFor(nil, now))

	var zero time.Time
	require.Equal(t, now.Add(365*24*time.Hour), p.ExpirationFor(&zero, now))
}
