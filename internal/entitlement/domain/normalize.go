package domain

import "github.com/shopspring/decimal"

// Normalize merges one (already cross-plan merged) plan feature row with an
// optional override into the effective entitlement. Deterministic, no I/O:
//
//   - an explicitly set override enable/unlimited wins over the plan value
//   - an absolute max override replaces the plan cap; a delta adds to it;
//     otherwise the plan cap stands
//   - included allowances are never touched by overrides, preserving the
//     included-vs-max distinction used for soft-overage billing
func Normalize(feature Feature, plan PlanFeature, override *Override) Effective {
	eff := Effective{
		FeatureKey: plan.FeatureKey,
		Feature:    feature,

		IsEnabled:   plan.IsEnabled,
		IsUnlimited: plan.IsUnlimited,

		IncludedInt: copyInt(plan.IncludedInt),
		IncludedDec: copyDec(plan.IncludedDec),
		MaxInt:      copyInt(plan.MaxInt),
		MaxDec:      copyDec(plan.MaxDec),

		RecurringCreditGrant: copyDec(plan.RecurringCreditGrant),
		RolloverCredits:      plan.RolloverCredits,
		TopUpEnabled:         plan.TopUpEnabled,
		TopUpPrice:           copyDec(plan.TopUpPrice),

		Enforcement: plan.Enforcement,
		OverageMode: plan.OverageMode,
		OverageFee:  copyDec(plan.OverageFee),
	}
	if eff.FeatureKey == "" {
		eff.FeatureKey = feature.Key
	}
	if eff.Enforcement == "" {
		eff.Enforcement = EnforcementHard
	}

	if override == nil {
		return eff
	}
	return ApplyOverride(eff, *override)
}

// ApplyOverride layers one override onto an already-resolved entitlement.
// The resolver calls this once per layer, agency first, subaccount last, so
// the most specific scope always wins on conflict.
func ApplyOverride(eff Effective, override Override) Effective {
	if override.IsEnabled != nil {
		eff.IsEnabled = *override.IsEnabled
	}
	if override.IsUnlimited != nil {
		eff.IsUnlimited = *override.IsUnlimited
	}

	switch {
	case override.MaxOverrideInt != nil:
		eff.MaxInt = copyInt(override.MaxOverrideInt)
	case override.MaxDeltaInt != nil:
		eff.MaxInt = sumInt(eff.MaxInt, override.MaxDeltaInt)
	}

	switch {
	case override.MaxOverrideDec != nil:
		eff.MaxDec = copyDec(override.MaxOverrideDec)
	case override.MaxDeltaDec != nil:
		eff.MaxDec = sumDec(eff.MaxDec, override.MaxDeltaDec)
	}

	return eff
}

// Synthesize builds a minimal entitlement for an override whose feature key
// has no plan row at all. Overrides can surface features outside the plan but
// default to disabled unless explicitly turned on, so an override is never
// silently dropped yet can never silently grant.
func Synthesize(feature Feature, override Override) Effective {
	enabled := false
	if override.IsEnabled != nil {
		enabled = *override.IsEnabled
	}

	eff := Effective{
		FeatureKey:  feature.Key,
		Feature:     feature,
		IsEnabled:   enabled,
		Enforcement: EnforcementHard,
	}
	if override.IsUnlimited != nil {
		eff.IsUnlimited = *override.IsUnlimited
	}
	if override.MaxOverrideInt != nil {
		eff.MaxInt = copyInt(override.MaxOverrideInt)
	}
	if override.MaxOverrideDec != nil {
		eff.MaxDec = copyDec(override.MaxOverrideDec)
	}
	return eff
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyDec(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
