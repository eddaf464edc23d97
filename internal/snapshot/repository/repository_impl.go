package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const snapshotColumns = `id, user_id, scope_key, role_id, permission_keys, permission_hash,
	version, active, created_at, updated_at`

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey string) (*domain.AccessSnapshot, error) {
	var snap domain.AccessSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+` FROM access_snapshots WHERE user_id = ? AND scope_key = ?`,
		userID,
		scopeKey,
	).Scan(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, snapshot *domain.AccessSnapshot) error {
	return db.WithContext(ctx).Save(snapshot).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, userID snowflake.ID, scopeKey string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE access_snapshots SET active = false, updated_at = ? WHERE user_id = ? AND scope_key = ?`,
		at,
		userID,
		scopeKey,
	).Error
}

func (r *repo) ListByRoleID(ctx context.Context, db *gorm.DB, roleID snowflake.ID) ([]domain.AccessSnapshot, error) {
	var items []domain.AccessSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+` FROM access_snapshots WHERE role_id = ?`,
		roleID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
