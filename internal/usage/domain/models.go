package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageRecord is one consumed unit batch of a metered feature at a scope.
// Consumption is written by callers after an allowed decision; the checker
// only ever sums these rows.
type UsageRecord struct {
	ID         snowflake.ID `json:"id,string" gorm:"primaryKey"`
	ScopeKey   string       `json:"scope_key" gorm:"index:idx_usage_scope_feature"`
	AgencyID   snowflake.ID `json:"agency_id,string" gorm:"index"`
	FeatureKey string       `json:"feature_key" gorm:"index:idx_usage_scope_feature"`
	Quantity   int64        `json:"quantity"`
	ActionKey  *string      `json:"action_key,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// CreditLedgerEntry is a signed credit movement. The balance is the sum of
// entries; grants are positive, consumption negative.
type CreditLedgerEntry struct {
	ID         snowflake.ID    `json:"id,string" gorm:"primaryKey"`
	AgencyID   snowflake.ID    `json:"agency_id,string" gorm:"index:idx_credit_agency_feature"`
	FeatureKey string          `json:"feature_key" gorm:"index:idx_credit_agency_feature"`
	Delta      decimal.Decimal `json:"delta" gorm:"type:numeric"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (CreditLedgerEntry) TableName() string { return "credit_ledger" }

type Repository interface {
	SumUsage(ctx context.Context, db *gorm.DB, scopeKey, featureKey string) (int64, error)
	CreditBalance(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, featureKey string) (decimal.Decimal, error)
	RecordUsage(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	AppendCredit(ctx context.Context, db *gorm.DB, entry *CreditLedgerEntry) error
}
