// Package domain contains the locally persisted subscription state written by
// the external billing-provider sync. This engine only reads it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents subscription lifecycle states as synced from billing.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusTrialing Status = "TRIALING"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
	StatusEnded    Status = "ENDED"
)

// entitledStatuses is the set of statuses under which a base plan's features
// are granted.
var entitledStatuses = map[Status]struct{}{
	StatusActive:   {},
	StatusTrialing: {},
}

// Subscription is an agency's base-plan agreement.
type Subscription struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	AgencyID snowflake.ID `gorm:"column:agency_id;not null;uniqueIndex"`
	Status   Status       `gorm:"type:text;not null"`

	// PriceID is the billing provider's plan identifier; plan-feature rows
	// key off it.
	PriceID string `gorm:"column:price_id;type:text;not null"`

	CurrentPeriodEndDate *time.Time        `gorm:"column:current_period_end_date"`
	TrialEndDate         *time.Time        `gorm:"column:trial_end_date"`
	Metadata             datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

// IsEntitled reports whether the base plan currently grants features: status
// in the entitled set and the current period not yet ended.
func (s Subscription) IsEntitled(now time.Time) bool {
	if _, ok := entitledStatuses[s.Status]; !ok {
		return false
	}
	if s.CurrentPeriodEndDate != nil && !now.Before(*s.CurrentPeriodEndDate) {
		return false
	}
	return true
}

// AddOn is a purchased add-on stacked on the base plan.
type AddOn struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	AgencyID snowflake.ID `gorm:"column:agency_id;not null;index"`
	PriceID  string       `gorm:"column:price_id;type:text;not null"`
	IsActive bool         `gorm:"column:is_active;not null"`
	StartsAt time.Time    `gorm:"column:starts_at;not null"`
	EndsAt   *time.Time   `gorm:"column:ends_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AddOn) TableName() string { return "subscription_addons" }

// IsCurrent reports whether the add-on contributes plan features at the
// given instant.
func (a AddOn) IsCurrent(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if now.Before(a.StartsAt) {
		return false
	}
	if a.EndsAt != nil && !now.Before(*a.EndsAt) {
		return false
	}
	return true
}
