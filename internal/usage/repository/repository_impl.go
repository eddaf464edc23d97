package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/gatehouse/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) SumUsage(ctx context.Context, db *gorm.DB, scopeKey, featureKey string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0) FROM usage_records WHERE scope_key = ? AND feature_key = ?`,
		scopeKey,
		featureKey,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) CreditBalance(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, featureKey string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE agency_id = ? AND feature_key = ?`,
		agencyID,
		featureKey,
	).Scan(&balance).Error
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *repo) RecordUsage(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) AppendCredit(ctx context.Context, db *gorm.DB, entry *domain.CreditLedgerEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}
