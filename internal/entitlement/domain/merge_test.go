package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMergePlanFeatures_AdditiveStacking(t *testing.T) {
	base := PlanFeature{
		FeatureKey:  "crm.customers.contact",
		IsEnabled:   true,
		IncludedInt: i64(100),
		MaxInt:      i64(100),
		Enforcement: EnforcementHard,
	}
	addon := PlanFeature{
		FeatureKey:  "crm.customers.contact",
		IsEnabled:   true,
		IncludedInt: i64(50),
		MaxInt:      i64(50),
		Enforcement: EnforcementSoft,
	}

	merged := MergePlanFeatures([]PlanFeature{base, addon})

	assert.True(t, merged.IsEnabled)
	require.NotNil(t, merged.IncludedInt)
	assert.Equal(t, int64(150), *merged.IncludedInt)
	require.NotNil(t, merged.MaxInt)
	assert.Equal(t, int64(150), *merged.MaxInt)
	assert.Equal(t, EnforcementHard, merged.Enforcement)
}

func TestMergePlanFeatures_OrderIndependent(t *testing.T) {
	rows := []PlanFeature{
		{FeatureKey: "fi.invoicing", IsEnabled: false, MaxInt: i64(10), Enforcement: EnforcementSoft},
		{FeatureKey: "fi.invoicing", IsEnabled: true, IsUnlimited: false, MaxInt: i64(20), Enforcement: EnforcementHard},
		{FeatureKey: "fi.invoicing", IncludedDec: dec("2.5"), Enforcement: EnforcementSoft},
	}
	reversed := []PlanFeature{rows[2], rows[1], rows[0]}

	a := MergePlanFeatures(rows)
	b := MergePlanFeatures(reversed)

	assert.Equal(t, a.IsEnabled, b.IsEnabled)
	assert.Equal(t, *a.MaxInt, *b.MaxInt)
	assert.True(t, a.IncludedDec.Equal(*b.IncludedDec))
	assert.Equal(t, a.Enforcement, b.Enforcement)
}

func TestMergePlanFeatures_NilCapsStayNil(t *testing.T) {
	merged := MergePlanFeatures([]PlanFeature{
		{FeatureKey: "crm.core", IsEnabled: true},
		{FeatureKey: "crm.core"},
	})

	// nil means "not capped by this plan", which must survive the fold.
	assert.Nil(t, merged.IncludedInt)
	assert.Nil(t, merged.MaxInt)
	assert.Nil(t, merged.IncludedDec)
	assert.Nil(t, merged.MaxDec)
}

func TestMergePlanFeatures_NilPlusValueCountsNilAsZero(t *testing.T) {
	merged := MergePlanFeatures([]PlanFeature{
		{FeatureKey: "fi.invoicing", MaxInt: nil},
		{FeatureKey: "fi.invoicing", MaxInt: i64(40)},
	})

	require.NotNil(t, merged.MaxInt)
	assert.Equal(t, int64(40), *merged.MaxInt)
}

func TestNormalize_OverrideAbsoluteReplacesCap(t *testing.T) {
	feature := Feature{Key: "crm.customers.contact", ValueType: ValueTypeInteger}
	plan := PlanFeature{FeatureKey: feature.Key, IsEnabled: true, MaxInt: i64(100), Enforcement: EnforcementHard}
	override := Override{MaxOverrideInt: i64(500)}

	eff := Normalize(feature, plan, &override)

	require.NotNil(t, eff.MaxInt)
	assert.Equal(t, int64(500), *eff.MaxInt)
	assert.True(t, eff.IsEnabled)
}

func TestNormalize_OverrideDeltaAddsToCap(t *testing.T) {
	feature := Feature{Key: "crm.customers.contact", ValueType: ValueTypeInteger}
	plan := PlanFeature{FeatureKey: feature.Key, IsEnabled: true, MaxInt: i64(100), IncludedInt: i64(100)}
	override := Override{MaxDeltaInt: i64(20)}

	eff := Normalize(feature, plan, &override)

	require.NotNil(t, eff.MaxInt)
	assert.Equal(t, int64(120), *eff.MaxInt)
	// Included allowances are never touched by overrides.
	require.NotNil(t, eff.IncludedInt)
	assert.Equal(t, int64(100), *eff.IncludedInt)
}

func TestNormalize_AbsoluteWinsOverDeltaInOneOverride(t *testing.T) {
	feature := Feature{Key: "fi.invoicing", ValueType: ValueTypeInteger}
	plan := PlanFeature{FeatureKey: feature.Key, IsEnabled: true, MaxInt: i64(100)}
	override := Override{MaxOverrideInt: i64(500), MaxDeltaInt: i64(20)}

	eff := Normalize(feature, plan, &override)

	require.NotNil(t, eff.MaxInt)
	assert.Equal(t, int64(500), *eff.MaxInt)
}

func TestApplyOverride_LayeringSubAccountLast(t *testing.T) {
	feature := Feature{Key: "crm.customers.contact", ValueType: ValueTypeInteger}
	plan := PlanFeature{FeatureKey: feature.Key, IsEnabled: true, MaxInt: i64(10), IncludedInt: i64(5)}

	agency := Override{MaxDeltaInt: i64(5)}
	sub := Override{MaxDeltaInt: i64(-5)}

	eff := Normalize(feature, plan, nil)
	eff = ApplyOverride(eff, agency)
	eff = ApplyOverride(eff, sub)

	require.NotNil(t, eff.MaxInt)
	assert.Equal(t, int64(10), *eff.MaxInt)

	disabled := false
	eff = ApplyOverride(eff, Override{IsEnabled: &disabled})
	assert.False(t, eff.IsEnabled)
}

func TestNormalize_UnsetOverrideFieldsLeavePlanValues(t *testing.T) {
	feature := Feature{Key: "crm.core", ValueType: ValueTypeBoolean}
	plan := PlanFeature{FeatureKey: feature.Key, IsEnabled: true, IsUnlimited: true, Enforcement: EnforcementSoft}

	eff := Normalize(feature, plan, &Override{})

	assert.True(t, eff.IsEnabled)
	assert.True(t, eff.IsUnlimited)
	assert.Equal(t, EnforcementSoft, eff.Enforcement)
}

func TestSynthesize_DefaultsDisabled(t *testing.T) {
	feature := Feature{Key: "fi.reporting", ValueType: ValueTypeBoolean}

	eff := Synthesize(feature, Override{MaxOverrideInt: i64(10)})
	assert.False(t, eff.IsEnabled)
	require.NotNil(t, eff.MaxInt)
	assert.Equal(t, int64(10), *eff.MaxInt)

	enabled := true
	eff = Synthesize(feature, Override{IsEnabled: &enabled})
	assert.True(t, eff.IsEnabled)
}

func TestOverrideActiveAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)

	o := Override{StartsAt: now.Add(-time.Hour), EndsAt: &end}
	assert.True(t, o.ActiveAt(now))
	assert.False(t, o.ActiveAt(now.Add(2*time.Hour)))
	assert.False(t, o.ActiveAt(now.Add(-2*time.Hour)))

	// EndsAt is exclusive.
	assert.False(t, o.ActiveAt(end))

	open := Override{StartsAt: now.Add(-time.Hour)}
	assert.True(t, open.ActiveAt(now.Add(1000*time.Hour)))
}

func TestEffectiveSatisfied(t *testing.T) {
	intFeature := Feature{Key: "crm.customers.contact", ValueType: ValueTypeInteger}

	assert.False(t, Effective{Feature: intFeature}.Satisfied())
	assert.False(t, Effective{Feature: intFeature, IsEnabled: true}.Satisfied())
	assert.False(t, Effective{Feature: intFeature, IsEnabled: true, MaxInt: i64(0)}.Satisfied())
	assert.True(t, Effective{Feature: intFeature, IsEnabled: true, MaxInt: i64(1)}.Satisfied())
	assert.True(t, Effective{Feature: intFeature, IsEnabled: true, IsUnlimited: true}.Satisfied())
	assert.True(t, Effective{Feature: intFeature, IsEnabled: true, IncludedInt: i64(10)}.Satisfied())

	boolFeature := Feature{Key: "crm.core", ValueType: ValueTypeBoolean}
	assert.True(t, Effective{Feature: boolFeature, IsEnabled: true}.Satisfied())
	assert.False(t, Effective{Feature: boolFeature}.Satisfied())

	decFeature := Feature{Key: "fi.volume", ValueType: ValueTypeDecimal}
	assert.True(t, Effective{Feature: decFeature, IsEnabled: true, MaxDec: dec("0.5")}.Satisfied())
	assert.False(t, Effective{Feature: decFeature, IsEnabled: true, MaxDec: dec("0")}.Satisfied())
}
