package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/featureflag/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const prefColumns = `id, user_id, scope_key, agency_id, subaccount_id, feature_key, enabled, created_at, updated_at`

func (r *repo) ListPreferences(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey string) ([]domain.UserFeaturePreference, error) {
	var items []domain.UserFeaturePreference
	err := db.WithContext(ctx).Raw(
		`SELECT `+prefColumns+` FROM user_feature_preferences WHERE user_id = ? AND scope_key = ?`,
		userID,
		scopeKey,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindPreference(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey, featureKey string) (*domain.UserFeaturePreference, error) {
	var pref domain.UserFeaturePreference
	err := db.WithContext(ctx).Raw(
		`SELECT `+prefColumns+` FROM user_feature_preferences
		 WHERE user_id = ? AND scope_key = ? AND feature_key = ?`,
		userID,
		scopeKey,
		featureKey,
	).Scan(&pref).Error
	if err != nil {
		return nil, err
	}
	if pref.ID == 0 {
		return nil, nil
	}
	return &pref, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, pref *domain.UserFeaturePreference) error {
	return db.WithContext(ctx).Save(pref).Error
}
