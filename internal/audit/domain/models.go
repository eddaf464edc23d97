package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is an append-only record of an authorization-relevant mutation:
// grant changes, override edits, key issuance, toggles.
type Entry struct {
	ID        string            `json:"id" gorm:"primaryKey;type:text"`
	ActorType string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID   string            `json:"actor_id" gorm:"type:text;not null"`
	Action    string            `json:"action" gorm:"type:text;not null;index"`
	ScopeKey  string            `json:"scope_key" gorm:"type:text;index"`
	Details   datatypes.JSONMap `json:"details" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"created_at" gorm:"index"`
}

func (Entry) TableName() string { return "audit_entries" }

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, entry *Entry) error
	ListByScope(ctx context.Context, db *gorm.DB, scopeKey string, limit int) ([]Entry, error)
}

type Record struct {
	ActorType string
	ActorID   string
	Action    string
	ScopeKey  string
	Details   map[string]interface{}
}

type Service interface {
	// Record appends an audit entry. Failures are logged, never propagated:
	// auditing must not block the mutation it describes.
	Record(ctx context.Context, rec Record)

	ListByScope(ctx context.Context, scopeKey string, limit int) ([]Entry, error)
}
