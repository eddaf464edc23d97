package repository

import (
	"context"

	"github.com/smallbiznis/gatehouse/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListByScope(ctx context.Context, db *gorm.DB, scopeKey string, limit int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, actor_type, actor_id, action, scope_key, details, created_at
		 FROM audit_entries
		 WHERE scope_key = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		scopeKey,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
