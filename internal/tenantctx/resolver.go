package tenantctx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/principal"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ContextError is a scope-resolution failure raised before authorization can
// begin. StatusHint is the HTTP status the boundary should translate to.
type ContextError struct {
	Code       string
	StatusHint int
	Message    string
}

const (
	CodeContextMissing   = "CONTEXT_MISSING"
	CodeContextInvalid   = "CONTEXT_INVALID"
	CodeContextForbidden = "CONTEXT_FORBIDDEN"
)

func (e *ContextError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func missing(msg string) *ContextError {
	return &ContextError{Code: CodeContextMissing, StatusHint: http.StatusBadRequest, Message: msg}
}

func invalid(msg string) *ContextError {
	return &ContextError{Code: CodeContextInvalid, StatusHint: http.StatusUnprocessableEntity, Message: msg}
}

func forbidden(msg string) *ContextError {
	return &ContextError{Code: CodeContextForbidden, StatusHint: http.StatusForbidden, Message: msg}
}

type ResolverParams struct {
	fx.In

	Log         *zap.Logger
	Memberships membershipdomain.Service
}

// Resolver maps a principal plus the inbound tenant selector headers to a
// validated Scope. An API key's fixed scope can never be widened by headers.
type Resolver struct {
	log         *zap.Logger
	memberships membershipdomain.Service
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		log:         p.Log.Named("tenantctx.resolver"),
		memberships: p.Memberships,
	}
}

func (r *Resolver) Resolve(ctx context.Context, p principal.Principal, agencyHeader, subAccountHeader string) (scope.Scope, error) {
	agencyHeader = strings.TrimSpace(agencyHeader)
	subAccountHeader = strings.TrimSpace(subAccountHeader)

	switch p.Kind {
	case principal.KindSubAccountKey:
		return r.resolveSubAccountKey(ctx, p, agencyHeader, subAccountHeader)
	case principal.KindAgencyKey:
		return r.resolveAgencyKey(ctx, p, agencyHeader, subAccountHeader)
	default:
		return r.resolveUser(ctx, p, agencyHeader, subAccountHeader)
	}
}

// resolveSubAccountKey pins the scope to the key's subaccount; any
// conflicting selector header is rejected rather than ignored.
func (r *Resolver) resolveSubAccountKey(ctx context.Context, p principal.Principal, agencyHeader, subAccountHeader string) (scope.Scope, error) {
	if subAccountHeader != "" && subAccountHeader != p.SubAccountID.String() {
		return scope.Scope{}, forbidden("api key is bound to another subaccount")
	}

	agencyID, err := r.agencyOf(ctx, p.SubAccountID)
	if err != nil {
		return scope.Scope{}, err
	}
	if agencyHeader != "" && agencyHeader != agencyID.String() {
		return scope.Scope{}, forbidden("api key is bound to another agency")
	}
	return scope.SubAccount(agencyID, p.SubAccountID), nil
}

func (r *Resolver) resolveAgencyKey(ctx context.Context, p principal.Principal, agencyHeader, subAccountHeader string) (scope.Scope, error) {
	if agencyHeader != "" && agencyHeader != p.AgencyID.String() {
		return scope.Scope{}, forbidden("api key is bound to another agency")
	}
	if subAccountHeader == "" {
		return scope.Agency(p.AgencyID), nil
	}

	subAccountID, err := parseID(subAccountHeader)
	if err != nil {
		return scope.Scope{}, invalid("malformed subaccount selector")
	}
	if !p.MaySelectSubAccount(subAccountID) {
		return scope.Scope{}, forbidden("api key may not act on this subaccount")
	}
	ok, err := r.memberships.SubAccountBelongsToAgency(ctx, p.AgencyID, subAccountID)
	if err != nil {
		return scope.Scope{}, err
	}
	if !ok {
		return scope.Scope{}, invalid("subaccount does not belong to the agency")
	}
	return scope.SubAccount(p.AgencyID, subAccountID), nil
}

func (r *Resolver) resolveUser(ctx context.Context, p principal.Principal, agencyHeader, subAccountHeader string) (scope.Scope, error) {
	if agencyHeader == "" {
		return scope.Scope{}, missing("no agency selector supplied")
	}
	agencyID, err := parseID(agencyHeader)
	if err != nil {
		return scope.Scope{}, invalid("malformed agency selector")
	}

	if subAccountHeader == "" {
		return scope.Agency(agencyID), nil
	}
	subAccountID, err := parseID(subAccountHeader)
	if err != nil {
		return scope.Scope{}, invalid("malformed subaccount selector")
	}
	ok, err := r.memberships.SubAccountBelongsToAgency(ctx, agencyID, subAccountID)
	if err != nil {
		return scope.Scope{}, err
	}
	if !ok {
		return scope.Scope{}, invalid("subaccount does not belong to the agency")
	}
	return scope.SubAccount(agencyID, subAccountID), nil
}

func (r *Resolver) agencyOf(ctx context.Context, subAccountID snowflake.ID) (snowflake.ID, error) {
	agencyID, err := r.memberships.AgencyOfSubAccount(ctx, subAccountID)
	if err != nil {
		return 0, err
	}
	if agencyID == nil {
		return 0, invalid("api key references an unknown subaccount")
	}
	return *agencyID, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

var Module = fx.Module("tenantctx",
	fx.Provide(NewResolver),
)
