package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/gatehouse/internal/principal"
	"gorm.io/gorm"
)

// APIKey stores only the hash of an issued credential; the secret is shown
// once at creation and never persisted.
type APIKey struct {
	ID      snowflake.ID   `json:"id,string" gorm:"primaryKey"`
	Kind    principal.Kind `json:"kind" gorm:"type:text;not null"`
	Name    string         `json:"name" gorm:"type:text;not null"`
	Prefix  string         `json:"prefix" gorm:"type:text;not null"`
	KeyHash string         `json:"-" gorm:"column:key_hash;type:text;not null;uniqueIndex"`

	AgencyID     snowflake.ID  `json:"agency_id,string" gorm:"index"`
	SubAccountID *snowflake.ID `json:"subaccount_id,string,omitempty"`
	UserID       *snowflake.ID `json:"user_id,string,omitempty"`

	// AllowedSubAccountIDs restricts an agency key to a subset of
	// subaccounts. Empty means every subaccount under the agency.
	AllowedSubAccountIDs pq.StringArray `json:"allowed_subaccount_ids" gorm:"type:text[]"`

	IsActive   bool       `json:"is_active" gorm:"not null;default:true"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (APIKey) TableName() string { return "api_keys" }

type Repository interface {
	FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*APIKey, error)
	Create(ctx context.Context, db *gorm.DB, key *APIKey) error
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	Revoke(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type CreateRequest struct {
	Kind                 principal.Kind
	Name                 string
	AgencyID             snowflake.ID
	SubAccountID         *snowflake.ID
	UserID               *snowflake.ID
	AllowedSubAccountIDs []snowflake.ID
}

type Service interface {
	// Create issues a key and returns the plaintext secret exactly once.
	Create(ctx context.Context, req CreateRequest) (*APIKey, string, error)

	// Resolve authenticates a presented secret into a Principal.
	Resolve(ctx context.Context, secret string) (principal.Principal, error)

	// Revoke deactivates a key.
	Revoke(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidKey     = errors.New("invalid_api_key")
	ErrInvalidRequest = errors.New("invalid_api_key_request")
)
