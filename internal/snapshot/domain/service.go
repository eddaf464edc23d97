package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/scope"
)

type Service interface {
	// Get returns the access snapshot for the user at the scope, rebuilding
	// it from live membership data when no active row exists. A nil snapshot
	// with a nil error means the user has no active membership at the scope.
	Get(ctx context.Context, userID snowflake.ID, sc scope.Scope) (*AccessSnapshot, error)

	// Invalidate drops the local cache entry and deletes the persisted row
	// for one (user, scopeKey) pair. The next read rebuilds.
	Invalidate(ctx context.Context, userID snowflake.ID, scopeKey string) error

	// InvalidateByRoleID fans out invalidation to every pair currently
	// snapshotted against the role. Must be called after any mutation of
	// the role's permission grants.
	InvalidateByRoleID(ctx context.Context, roleID snowflake.ID) error
}
