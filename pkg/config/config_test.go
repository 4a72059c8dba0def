package config

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/glasswing-io/tiergate/pkg/types"
)

func catalogConfig() *Config {
	return &Config{
		Env: EnvDev,
		Products: []*types.TierProduct{
			{ProductID: "prod_basic_m", Tier: types.TierBasic, BillingFrequency: types.BillingFrequencyMonthly, DurationDays: 30},
			{ProductID: "prod_pro_y", Tier: types.TierProfessional, BillingFrequency: types.BillingFrequencyYearly, DurationDays: 365},
		},
	}
}

func TestBillingFrequencyOf(t *testing.T) {
	cfg := catalogConfig()

	require.Equal(t, types.BillingFrequencyMonthly, cfg.BillingFrequencyOf("prod_basic_m"))
	require.Equal(t, types.BillingFrequencyYearly, cfg.BillingFrequencyOf("prod_pro_y"))
	require.Empty(t, cfg.BillingFrequencyOf("prod_missing"))
}

func TestProductFor_MatchesTierSynonyms(t *testing.T) {
	cfg := catalogConfig()

	product, err := cfg.ProductFor(types.TierPro, types.BillingFrequencyYearly)
	require.NoError(t, err)
	require.Equal(t, "prod_pro_y", product.ProductID)

	_, err = cfg.ProductFor(types.TierBusiness, types.BillingFrequencyMonthly)
	require.Error(t, err)
}

func TestSignatureRequired(t *testing.T) {
	cfg := catalogConfig()
	require.False(t, cfg.SignatureRequired())

	cfg.Env = EnvProd
	require.True(t, cfg.SignatureRequired())

	cfg.Webhook.RequireSignature = lo.ToPtr(false)
	require.False(t, cfg.SignatureRequired())
}
