package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"gorm.io/gorm"
)

// UserFeaturePreference is a per-user opt-in/opt-out beneath plan and admin
// enablement. It can only ever narrow access, never widen it.
type UserFeaturePreference struct {
	ID           snowflake.ID  `json:"id,string" gorm:"primaryKey"`
	UserID       snowflake.ID  `json:"user_id,string" gorm:"index:idx_user_feature_prefs,unique"`
	ScopeKey     string        `json:"scope_key" gorm:"index:idx_user_feature_prefs,unique"`
	AgencyID     snowflake.ID  `json:"agency_id,string"`
	SubAccountID *snowflake.ID `json:"subaccount_id,string,omitempty"`
	FeatureKey   string        `json:"feature_key" gorm:"index:idx_user_feature_prefs,unique"`
	Enabled      bool          `json:"enabled"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (UserFeaturePreference) TableName() string {
	return "user_feature_preferences"
}

// FlagState is one feature's flag view for a user at a scope.
type FlagState struct {
	FeatureKey       string `json:"feature_key"`
	Name             string `json:"name"`
	Entitled         bool   `json:"entitled"`
	IsToggleable     bool   `json:"is_toggleable"`
	UserEnabled      bool   `json:"user_enabled"`
	EffectiveEnabled bool   `json:"effective_enabled"`
}

type Repository interface {
	ListPreferences(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey string) ([]UserFeaturePreference, error)
	FindPreference(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey, featureKey string) (*UserFeaturePreference, error)
	Upsert(ctx context.Context, db *gorm.DB, pref *UserFeaturePreference) error
}

type ToggleRequest struct {
	UserID     snowflake.ID
	Scope      scope.Scope
	FeatureKey string
	Enabled    bool
}

type Service interface {
	// GetFeatureFlags intersects the scope's resolved entitlements with the
	// feature catalog and the user's stored preferences.
	GetFeatureFlags(ctx context.Context, userID snowflake.ID, sc scope.Scope) ([]FlagState, error)

	// ToggleUserFeature stores a per-user preference. It rejects features
	// not marked toggleable and features the current plan does not grant.
	ToggleUserFeature(ctx context.Context, req ToggleRequest) (*FlagState, error)
}

var (
	ErrNotToggleable = errors.New("feature_not_toggleable")
	ErrNotEntitled   = errors.New("feature_not_entitled")
	ErrUnknownKey    = errors.New("unknown_feature_key")
)
