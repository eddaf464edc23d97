package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	policydomain "github.com/smallbiznis/gatehouse/internal/policy/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"github.com/smallbiznis/gatehouse/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubUsageRepo struct {
	used    int64
	balance decimal.Decimal
}

func (r *stubUsageRepo) SumUsage(context.Context, *gorm.DB, string, string) (int64, error) {
	return r.used, nil
}

func (r *stubUsageRepo) CreditBalance(context.Context, *gorm.DB, snowflake.ID, string) (decimal.Decimal, error) {
	return r.balance, nil
}

func (r *stubUsageRepo) RecordUsage(context.Context, *gorm.DB, *domain.UsageRecord) error {
	return nil
}

func (r *stubUsageRepo) AppendCredit(context.Context, *gorm.DB, *domain.CreditLedgerEntry) error {
	return nil
}

type stubEntitlements struct {
	effective map[string]entitlementdomain.Effective
}

func (e *stubEntitlements) Resolve(context.Context, entitlementdomain.ResolveRequest) (map[string]entitlementdomain.Effective, error) {
	return e.effective, nil
}

func (e *stubEntitlements) PutOverride(context.Context, entitlementdomain.PutOverrideRequest) (*entitlementdomain.Override, error) {
	return nil, nil
}

func (e *stubEntitlements) DeleteOverride(context.Context, string) error { return nil }

func intCap(v int64) *int64 { return &v }

func newChecker(repo *stubUsageRepo, effective map[string]entitlementdomain.Effective) policydomain.UsageChecker {
	return New(Params{
		Log:          zap.NewNop(),
		Repo:         repo,
		Entitlements: &stubEntitlements{effective: effective},
	})
}

func checkReq(quantity int64) policydomain.UsageCheckRequest {
	return policydomain.UsageCheckRequest{
		Scope:      scope.Agency(7),
		FeatureKey: "fi.invoicing",
		Quantity:   quantity,
	}
}

func meteredFeature(creditFunded bool, enforcement entitlementdomain.Enforcement, cap *int64) map[string]entitlementdomain.Effective {
	return map[string]entitlementdomain.Effective{
		"fi.invoicing": {
			FeatureKey: "fi.invoicing",
			Feature: entitlementdomain.Feature{
				Key:          "fi.invoicing",
				ValueType:    entitlementdomain.ValueTypeInteger,
				CreditFunded: creditFunded,
			},
			IsEnabled:   true,
			MaxInt:      cap,
			Enforcement: enforcement,
		},
	}
}

func TestCheck_FeatureNotEnabled(t *testing.T) {
	checker := newChecker(&stubUsageRepo{}, map[string]entitlementdomain.Effective{})

	verdict, err := checker.Check(context.Background(), checkReq(1))
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, policydomain.ReasonFeatureDisabled, verdict.Reason)
}

func TestCheck_UnlimitedAlwaysAllows(t *testing.T) {
	effective := meteredFeature(false, entitlementdomain.EnforcementHard, intCap(1))
	eff := effective["fi.invoicing"]
	eff.IsUnlimited = true
	effective["fi.invoicing"] = eff

	checker := newChecker(&stubUsageRepo{used: 1_000_000}, effective)
	verdict, err := checker.Check(context.Background(), checkReq(500))
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Nil(t, verdict.Remaining)
}

func TestCheck_WithinCapReportsRemaining(t *testing.T) {
	checker := newChecker(&stubUsageRepo{used: 90}, meteredFeature(false, entitlementdomain.EnforcementHard, intCap(100)))

	verdict, err := checker.Check(context.Background(), checkReq(4))
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	require.NotNil(t, verdict.Remaining)
	assert.Equal(t, int64(6), *verdict.Remaining)
}

func TestCheck_HardCapExceeded(t *testing.T) {
	checker := newChecker(&stubUsageRepo{used: 100}, meteredFeature(false, entitlementdomain.EnforcementHard, intCap(100)))

	verdict, err := checker.Check(context.Background(), checkReq(1))
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, policydomain.ReasonLimitExceeded, verdict.Reason)
	require.NotNil(t, verdict.Remaining)
	assert.Equal(t, int64(0), *verdict.Remaining)
}

func TestCheck_SoftCapAllowsOverage(t *testing.T) {
	checker := newChecker(&stubUsageRepo{used: 150}, meteredFeature(false, entitlementdomain.EnforcementSoft, intCap(100)))

	verdict, err := checker.Check(context.Background(), checkReq(10))
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestCheck_CreditFundedCoversShortfall(t *testing.T) {
	repo := &stubUsageRepo{used: 98, balance: decimal.NewFromInt(10)}
	checker := newChecker(repo, meteredFeature(true, entitlementdomain.EnforcementHard, intCap(100)))

	// 2 remain, 5 requested, shortfall of 3 covered by a balance of 10.
	verdict, err := checker.Check(context.Background(), checkReq(5))
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	require.NotNil(t, verdict.Remaining)
	assert.Equal(t, int64(0), *verdict.Remaining)
}

func TestCheck_CreditFundedInsufficientBalance(t *testing.T) {
	repo := &stubUsageRepo{used: 100, balance: decimal.NewFromInt(2)}
	checker := newChecker(repo, meteredFeature(true, entitlementdomain.EnforcementHard, intCap(100)))

	verdict, err := checker.Check(context.Background(), checkReq(5))
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, policydomain.ReasonInsufficientCredits, verdict.Reason)
}

func TestCheck_EnabledWithoutCapIsUncapped(t *testing.T) {
	checker := newChecker(&stubUsageRepo{used: 5_000}, meteredFeature(false, entitlementdomain.EnforcementHard, nil))

	verdict, err := checker.Check(context.Background(), checkReq(100))
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestCheck_IncludedUsedAsCapWhenNoMax(t *testing.T) {
	effective := meteredFeature(false, entitlementdomain.EnforcementHard, nil)
	eff := effective["fi.invoicing"]
	eff.IncludedInt = intCap(10)
	effective["fi.invoicing"] = eff

	checker := newChecker(&stubUsageRepo{used: 10}, effective)
	verdict, err := checker.Check(context.Background(), checkReq(1))
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, policydomain.ReasonLimitExceeded, verdict.Reason)
}
