package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey string) (*AccessSnapshot, error)
	Upsert(ctx context.Context, db *gorm.DB, snapshot *AccessSnapshot) error

	// Deactivate marks the row inactive instead of deleting it so the
	// version lineage survives an invalidation and the next rebuild is
	// observable as a version bump.
	Deactivate(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey string, at time.Time) error
	ListByRoleID(ctx context.Context, db *gorm.DB, roleID snowflake.ID) ([]AccessSnapshot, error)
}
