// Package domain contains the entitlement feature catalog, per-plan feature
// rows, manual overrides, and the pure merge rules that resolve them into
// effective entitlements.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ValueType describes how a feature's allowance is expressed.
type ValueType string

const (
	ValueTypeBoolean ValueType = "BOOLEAN"
	ValueTypeInteger ValueType = "INTEGER"
	ValueTypeDecimal ValueType = "DECIMAL"
	ValueTypeString  ValueType = "STRING"
)

// FeatureScope tells at which tenancy level a feature is metered.
type FeatureScope string

const (
	FeatureScopeAgency     FeatureScope = "AGENCY"
	FeatureScopeSubAccount FeatureScope = "SUBACCOUNT"
)

// Enforcement controls what happens when usage reaches the cap.
type Enforcement string

const (
	EnforcementHard Enforcement = "HARD"
	EnforcementSoft Enforcement = "SOFT"
)

// OverrideScope tells which tenancy level a manual override targets.
type OverrideScope string

const (
	OverrideScopeAgency     OverrideScope = "AGENCY"
	OverrideScopeSubAccount OverrideScope = "SUBACCOUNT"
)

// Feature is a catalog entry describing a meterable or boolean capability.
type Feature struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Key         string       `gorm:"type:text;not null;uniqueIndex"`
	Name        string       `gorm:"type:text;not null"`
	Description *string      `gorm:"type:text"`
	ValueType   ValueType    `gorm:"column:value_type;type:text;not null"`
	Aggregation *string      `gorm:"type:text"`
	Scope       FeatureScope `gorm:"column:feature_scope;type:text;not null"`

	// IsToggleable marks features a user may opt out of beneath plan
	// enablement.
	IsToggleable   bool `gorm:"column:is_toggleable;not null;default:false"`
	DefaultEnabled bool `gorm:"column:default_enabled;not null;default:true"`

	// Credit semantics: whether usage may be funded from a credit balance.
	CreditFunded     bool    `gorm:"column:credit_funded;not null;default:false"`
	CreditUnit       *string `gorm:"column:credit_unit;type:text"`
	CreditExpiryDays *int    `gorm:"column:credit_expiry_days"`
	CreditPriority   *int    `gorm:"column:credit_priority"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Feature) TableName() string { return "entitlement_features" }

// PlanFeature binds a feature to one billing plan's allowance.
type PlanFeature struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PlanID     string       `gorm:"column:plan_id;type:text;not null;index:ux_plan_features,priority:1"`
	FeatureKey string       `gorm:"column:feature_key;type:text;not null;index:ux_plan_features,priority:2"`

	IsEnabled   bool `gorm:"column:is_enabled;not null;default:false"`
	IsUnlimited bool `gorm:"column:is_unlimited;not null;default:false"`

	IncludedInt *int64           `gorm:"column:included_int"`
	IncludedDec *decimal.Decimal `gorm:"column:included_dec;type:numeric"`
	MaxInt      *int64           `gorm:"column:max_int"`
	MaxDec      *decimal.Decimal `gorm:"column:max_dec;type:numeric"`

	RecurringCreditGrant *decimal.Decimal `gorm:"column:recurring_credit_grant;type:numeric"`
	RolloverCredits      bool             `gorm:"column:rollover_credits;not null;default:false"`

	TopUpEnabled bool             `gorm:"column:topup_enabled;not null;default:false"`
	TopUpPrice   *decimal.Decimal `gorm:"column:topup_price;type:numeric"`

	Enforcement Enforcement      `gorm:"type:text;not null;default:HARD"`
	OverageMode *string          `gorm:"column:overage_mode;type:text"`
	OverageFee  *decimal.Decimal `gorm:"column:overage_fee;type:numeric"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PlanFeature) TableName() string { return "plan_features" }

// Override is a time-bounded manual adjustment to an entitlement, applied on
// top of the merged plan rows. Absolute fields replace, delta fields add.
type Override struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	Scope        OverrideScope `gorm:"column:override_scope;type:text;not null"`
	AgencyID     snowflake.ID  `gorm:"column:agency_id;not null;index"`
	SubAccountID *snowflake.ID `gorm:"column:subaccount_id;index"`
	FeatureKey   string        `gorm:"column:feature_key;type:text;not null"`

	StartsAt time.Time  `gorm:"column:starts_at;not null"`
	EndsAt   *time.Time `gorm:"column:ends_at"`

	IsEnabled   *bool `gorm:"column:is_enabled"`
	IsUnlimited *bool `gorm:"column:is_unlimited"`

	MaxOverrideInt *int64           `gorm:"column:max_override_int"`
	MaxOverrideDec *decimal.Decimal `gorm:"column:max_override_dec;type:numeric"`
	MaxDeltaInt    *int64           `gorm:"column:max_delta_int"`
	MaxDeltaDec    *decimal.Decimal `gorm:"column:max_delta_dec;type:numeric"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Override) TableName() string { return "entitlement_overrides" }

// ActiveAt reports whether the override applies at the given instant.
func (o Override) ActiveAt(now time.Time) bool {
	if now.Before(o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && !now.Before(*o.EndsAt) {
		return false
	}
	return true
}

// Effective is the resolved, read-only entitlement view. It is always rebuilt
// from plan rows and overrides, never mutated in place.
type Effective struct {
	FeatureKey string
	Feature    Feature

	IsEnabled   bool
	IsUnlimited bool

	IncludedInt *int64
	IncludedDec *decimal.Decimal
	MaxInt      *int64
	MaxDec      *decimal.Decimal

	RecurringCreditGrant *decimal.Decimal
	RolloverCredits      bool
	TopUpEnabled         bool
	TopUpPrice           *decimal.Decimal

	Enforcement Enforcement
	OverageMode *string
	OverageFee  *decimal.Decimal
}

// Satisfied reports whether the entitlement satisfies a gate requirement:
// boolean features need enablement only, quantity features additionally need
// an unlimited flag or a positive cap.
func (e Effective) Satisfied() bool {
	if !e.IsEnabled {
		return false
	}
	switch e.Feature.ValueType {
	case ValueTypeInteger:
		if e.IsUnlimited {
			return true
		}
		if e.MaxInt != nil && *e.MaxInt > 0 {
			return true
		}
		if e.IncludedInt != nil && *e.IncludedInt > 0 {
			return true
		}
		return false
	case ValueTypeDecimal:
		if e.IsUnlimited {
			return true
		}
		if e.MaxDec != nil && e.MaxDec.IsPositive() {
			return true
		}
		if e.IncludedDec != nil && e.IncludedDec.IsPositive() {
			return true
		}
		return false
	default:
		return true
	}
}
