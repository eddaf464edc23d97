// Package authorization is the operator-facing gate for the administrative
// surface: who may edit roles, grants, overrides, and keys. It is distinct
// from the tenant policy engine, which answers what a tenant's plan allows.
package authorization

import (
	"context"
	"errors"
)

const (
	ObjectRole         = "role"
	ObjectGrant        = "permission_grant"
	ObjectOverride     = "entitlement_override"
	ObjectAPIKey       = "api_key"
	ObjectAuditLog     = "audit_log"
	ObjectFeatureFlag  = "feature_flag"
	ObjectSnapshot     = "access_snapshot"
	ObjectCreditLedger = "credit_ledger"
)

const (
	ActionRoleView   = "role.view"
	ActionRoleCreate = "role.create"
	ActionRoleUpdate = "role.update"
	ActionRoleDelete = "role.delete"

	ActionGrantView    = "permission_grant.view"
	ActionGrantReplace = "permission_grant.replace"

	ActionOverrideView   = "entitlement_override.view"
	ActionOverridePut    = "entitlement_override.put"
	ActionOverrideDelete = "entitlement_override.delete"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"

	ActionFeatureFlagToggle = "feature_flag.toggle"

	ActionSnapshotInvalidate = "access_snapshot.invalidate"

	ActionCreditTopUp = "credit_ledger.topup"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidAgency = errors.New("invalid_agency")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	// Authorize checks whether the actor ("user:<id>", "api_key:<id>" or
	// "system") may perform the action on the object within the agency.
	Authorize(ctx context.Context, actor string, agencyID string, object string, action string) error
}
