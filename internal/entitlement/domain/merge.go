package domain

import "github.com/shopspring/decimal"

// MergePlanFeatures folds every plan row for one feature key into a single
// row, modeling additive stacking of add-on allowances on a base plan:
// booleans OR, nullable numeric caps SUM (nil+nil stays nil, otherwise nil
// counts as zero), and enforcement escalates to HARD when any contributor is
// HARD. The fold is commutative and associative, so store ordering of the
// input rows never changes the result.
func MergePlanFeatures(rows []PlanFeature) PlanFeature {
	if len(rows) == 0 {
		return PlanFeature{}
	}

	merged := PlanFeature{
		FeatureKey:  rows[0].FeatureKey,
		Enforcement: EnforcementSoft,
	}

	for _, row := range rows {
		merged.IsEnabled = merged.IsEnabled || row.IsEnabled
		merged.IsUnlimited = merged.IsUnlimited || row.IsUnlimited

		merged.IncludedInt = sumInt(merged.IncludedInt, row.IncludedInt)
		merged.MaxInt = sumInt(merged.MaxInt, row.MaxInt)
		merged.IncludedDec = sumDec(merged.IncludedDec, row.IncludedDec)
		merged.MaxDec = sumDec(merged.MaxDec, row.MaxDec)

		merged.RecurringCreditGrant = sumDec(merged.RecurringCreditGrant, row.RecurringCreditGrant)
		merged.RolloverCredits = merged.RolloverCredits || row.RolloverCredits
		merged.TopUpEnabled = merged.TopUpEnabled || row.TopUpEnabled
		if merged.TopUpPrice == nil {
			merged.TopUpPrice = row.TopUpPrice
		}

		if row.Enforcement == EnforcementHard {
			merged.Enforcement = EnforcementHard
		}
		if merged.OverageMode == nil {
			merged.OverageMode = row.OverageMode
		}
		if merged.OverageFee == nil {
			merged.OverageFee = row.OverageFee
		}
	}

	return merged
}

// sumInt adds nullable integers: nil+nil = nil, otherwise nil counts as zero.
// The distinction matters because a nil cap means "not capped by this plan",
// not "capped at zero".
func sumInt(a, b *int64) *int64 {
	if a == nil && b == nil {
		return nil
	}
	var total int64
	if a != nil {
		total += *a
	}
	if b != nil {
		total += *b
	}
	return &total
}

// sumDec adds nullable decimals with the same null semantics as sumInt.
func sumDec(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil && b == nil {
		return nil
	}
	total := decimal.Zero
	if a != nil {
		total = total.Add(*a)
	}
	if b != nil {
		total = total.Add(*b)
	}
	return &total
}
