package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByAgencyID(ctx context.Context, db *gorm.DB, agencyID snowflake.ID) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, agency_id, status, price_id, current_period_end_date, trial_end_date, metadata, created_at, updated_at
		 FROM subscriptions WHERE agency_id = ?
		 LIMIT 1`,
		agencyID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListAddOns(ctx context.Context, db *gorm.DB, agencyID snowflake.ID) ([]domain.AddOn, error) {
	var items []domain.AddOn
	err := db.WithContext(ctx).Raw(
		`SELECT id, agency_id, price_id, is_active, starts_at, ends_at, created_at, updated_at
		 FROM subscription_addons
		 WHERE agency_id = ? AND is_active = true
		 ORDER BY starts_at, id`,
		agencyID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
