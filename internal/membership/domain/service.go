package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/scope"
)

type Service interface {
	// ActiveRoleID resolves the user's active role for the scope. A nil
	// result with nil error means no active membership, which is a valid
	// terminal state, not a failure.
	ActiveRoleID(ctx context.Context, s scope.Scope, userID snowflake.ID) (*snowflake.ID, error)

	// HasActiveMembership reports whether the user holds an active
	// membership row at the given scope.
	HasActiveMembership(ctx context.Context, s scope.Scope, userID snowflake.ID) (bool, error)

	// GrantedPermissionKeys returns the de-duplicated keys granted to a
	// role. An unknown role yields an empty list.
	GrantedPermissionKeys(ctx context.Context, roleID snowflake.ID) ([]string, error)

	// ReplaceGrants swaps a role's grant set and reports the change so the
	// caller can invalidate dependent access snapshots.
	ReplaceGrants(ctx context.Context, req ReplaceGrantsRequest) error

	// SubAccountBelongsToAgency verifies the parent linkage used by the
	// tenant-context resolver.
	SubAccountBelongsToAgency(ctx context.Context, agencyID, subAccountID snowflake.ID) (bool, error)

	// AgencyOfSubAccount returns the owning agency id, or nil when the
	// subaccount does not exist.
	AgencyOfSubAccount(ctx context.Context, subAccountID snowflake.ID) (*snowflake.ID, error)
}

type ReplaceGrantsRequest struct {
	RoleID         string   `json:"role_id"`
	PermissionKeys []string `json:"permission_keys"`
}

var (
	ErrInvalidRoleID        = errors.New("invalid_role_id")
	ErrRoleNotFound         = errors.New("role_not_found")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrPermissionNotGated   = errors.New("permission_not_assignable")
	ErrInvalidPermissionKey = errors.New("invalid_permission_key")
)
