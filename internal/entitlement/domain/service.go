package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/gatehouse/internal/scope"
)

// ResolveRequest asks for the effective entitlements at a tenant scope.
type ResolveRequest struct {
	Scope scope.Scope

	// InheritAgencyOverrides forces inheritance of agency-scoped overrides
	// into a subaccount resolution. When nil the subaccount setting, then
	// the agency setting, then the global default (inherit) decide.
	InheritAgencyOverrides *bool
}

type Service interface {
	// Resolve returns the effective entitlement per feature key for the
	// scope. A tenant with no active plans resolves to an empty map;
	// callers must treat a missing key as not entitled, never unlimited.
	Resolve(ctx context.Context, req ResolveRequest) (map[string]Effective, error)

	// PutOverride creates or updates a manual override.
	PutOverride(ctx context.Context, req PutOverrideRequest) (*Override, error)

	// DeleteOverride removes a manual override by id.
	DeleteOverride(ctx context.Context, id string) error
}

type PutOverrideRequest struct {
	ID           string  `json:"id,omitempty"`
	Scope        string  `json:"scope"`
	AgencyID     string  `json:"agency_id"`
	SubAccountID *string `json:"subaccount_id,omitempty"`
	FeatureKey   string  `json:"feature_key"`

	StartsAt string  `json:"starts_at"`
	EndsAt   *string `json:"ends_at,omitempty"`

	IsEnabled   *bool `json:"is_enabled,omitempty"`
	IsUnlimited *bool `json:"is_unlimited,omitempty"`

	MaxOverrideInt *int64  `json:"max_override_int,omitempty"`
	MaxOverrideDec *string `json:"max_override_dec,omitempty"`
	MaxDeltaInt    *int64  `json:"max_delta_int,omitempty"`
	MaxDeltaDec    *string `json:"max_delta_dec,omitempty"`
}

var (
	ErrInvalidScope      = errors.New("invalid_scope")
	ErrInvalidFeatureKey = errors.New("invalid_feature_key")
	ErrFeatureNotFound   = errors.New("feature_not_found")
	ErrInvalidOverride   = errors.New("invalid_override")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("not_found")
)
