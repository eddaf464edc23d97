package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// AccessSnapshot is a persisted, versioned materialization of a user's
// granted permission keys for one tenant scope. It is a disposable cache:
// the role and grant tables stay the system of record, and any row may be
// deleted and rebuilt at any time without data loss.
type AccessSnapshot struct {
	ID             snowflake.ID   `json:"id,string" gorm:"primaryKey"`
	UserID         snowflake.ID   `json:"user_id,string" gorm:"index:idx_access_snapshots_user_scope,unique"`
	ScopeKey       string         `json:"scope_key" gorm:"index:idx_access_snapshots_user_scope,unique"`
	RoleID         snowflake.ID   `json:"role_id,string" gorm:"index"`
	PermissionKeys pq.StringArray `json:"permission_keys" gorm:"type:text[]"`
	PermissionHash string         `json:"permission_hash"`
	Version        int64          `json:"version"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (AccessSnapshot) TableName() string {
	return "access_snapshots"
}

// Hash returns the stable hash of a permission key set: keys are
// de-duplicated and sorted before hashing so the hash is independent of
// grant row ordering.
func Hash(keys []string) string {
	deduped := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, key)
	}
	sort.Strings(deduped)

	sum := sha256.Sum256([]byte(strings.Join(deduped, "\n")))
	return hex.EncodeToString(sum[:])
}
