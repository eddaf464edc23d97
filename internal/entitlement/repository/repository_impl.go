package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const featureColumns = `id, key, name, description, value_type, aggregation, feature_scope,
	is_toggleable, default_enabled, credit_funded, credit_unit, credit_expiry_days, credit_priority,
	metadata, created_at, updated_at`

func (r *repo) ListFeaturesByKeys(ctx context.Context, db *gorm.DB, keys []string) ([]domain.Feature, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var items []domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT `+featureColumns+` FROM entitlement_features WHERE key IN ?`,
		keys,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindFeatureByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT `+featureColumns+` FROM entitlement_features WHERE key = ?`,
		key,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) ListPlanFeatures(ctx context.Context, db *gorm.DB, planIDs []string) ([]domain.PlanFeature, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}
	var items []domain.PlanFeature
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_id, feature_key, is_enabled, is_unlimited,
			included_int, included_dec, max_int, max_dec,
			recurring_credit_grant, rollover_credits, topup_enabled, topup_price,
			enforcement, overage_mode, overage_fee, created_at, updated_at
		 FROM plan_features
		 WHERE plan_id IN ?
		 ORDER BY feature_key, plan_id`,
		planIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

const overrideColumns = `id, override_scope, agency_id, subaccount_id, feature_key,
	starts_at, ends_at, is_enabled, is_unlimited,
	max_override_int, max_override_dec, max_delta_int, max_delta_dec,
	created_at, updated_at`

func (r *repo) ListAgencyOverrides(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, at time.Time) ([]domain.Override, error) {
	var items []domain.Override
	err := db.WithContext(ctx).Raw(
		`SELECT `+overrideColumns+`
		 FROM entitlement_overrides
		 WHERE override_scope = ? AND agency_id = ?
		   AND starts_at <= ? AND (ends_at IS NULL OR ends_at > ?)
		 ORDER BY starts_at, id`,
		domain.OverrideScopeAgency,
		agencyID,
		at,
		at,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSubAccountOverrides(ctx context.Context, db *gorm.DB, subAccountID snowflake.ID, at time.Time) ([]domain.Override, error) {
	var items []domain.Override
	err := db.WithContext(ctx).Raw(
		`SELECT `+overrideColumns+`
		 FROM entitlement_overrides
		 WHERE override_scope = ? AND subaccount_id = ?
		   AND starts_at <= ? AND (ends_at IS NULL OR ends_at > ?)
		 ORDER BY starts_at, id`,
		domain.OverrideScopeSubAccount,
		subAccountID,
		at,
		at,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertOverride(ctx context.Context, db *gorm.DB, override *domain.Override) error {
	return db.WithContext(ctx).Save(override).Error
}

func (r *repo) DeleteOverride(ctx context.Context, db *gorm.DB, overrideID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM entitlement_overrides WHERE id = ?`,
		overrideID,
	).Error
}
