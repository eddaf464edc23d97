package tenantctx

import (
	"context"

	"github.com/smallbiznis/gatehouse/internal/principal"
	"github.com/smallbiznis/gatehouse/internal/scope"
)

type scopeKey struct{}
type principalKey struct{}

// WithScope stores the resolved tenant scope in the context.
func WithScope(ctx context.Context, s scope.Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the resolved tenant scope, if set.
func ScopeFromContext(ctx context.Context) (scope.Scope, bool) {
	if ctx == nil {
		return scope.Scope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(scope.Scope)
	if !ok || s.IsZero() {
		return scope.Scope{}, false
	}
	return s, true
}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if set.
func PrincipalFromContext(ctx context.Context) (principal.Principal, bool) {
	if ctx == nil {
		return principal.Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(principal.Principal)
	if !ok || p.Kind == "" {
		return principal.Principal{}, false
	}
	return p, true
}
