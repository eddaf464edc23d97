package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListFeaturesByKeys(ctx context.Context, db *gorm.DB, keys []string) ([]Feature, error)
	FindFeatureByKey(ctx context.Context, db *gorm.DB, key string) (*Feature, error)
	ListPlanFeatures(ctx context.Context, db *gorm.DB, planIDs []string) ([]PlanFeature, error)
	ListAgencyOverrides(ctx context.Context, db *gorm.DB, agencyID snowflake.ID, at time.Time) ([]Override, error)
	ListSubAccountOverrides(ctx context.Context, db *gorm.DB, subAccountID snowflake.ID, at time.Time) ([]Override, error)
	UpsertOverride(ctx context.Context, db *gorm.DB, override *Override) error
	DeleteOverride(ctx context.Context, db *gorm.DB, overrideID snowflake.ID) error
}
