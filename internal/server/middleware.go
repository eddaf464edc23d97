package server

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditdomain "github.com/smallbiznis/gatehouse/internal/audit/domain"
	"github.com/smallbiznis/gatehouse/internal/principal"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"github.com/smallbiznis/gatehouse/internal/tenantctx"
)

const (
	HeaderRequestID  = "X-Request-ID"
	HeaderUserID     = "X-User-ID"
	HeaderAgency     = "X-Agency-ID"
	HeaderSubAccount = "X-SubAccount-ID"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// AuthRequired authenticates the caller into a Principal. API keys arrive as
// a bearer token; user sessions are terminated upstream and forwarded as a
// trusted X-User-ID header.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			p, err := s.apikeys.Resolve(c.Request.Context(), token)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			c.Request = c.Request.WithContext(tenantctx.WithPrincipal(c.Request.Context(), p))
			c.Next()
			return
		}

		rawUserID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if rawUserID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(rawUserID)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		p := principal.UserSession(userID)
		c.Request = c.Request.WithContext(tenantctx.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// TenantContext resolves the caller's tenant scope from the selector headers
// and the authenticated principal. Must run after AuthRequired.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := tenantctx.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sc, err := s.resolver.Resolve(
			c.Request.Context(),
			p,
			c.GetHeader(HeaderAgency),
			c.GetHeader(HeaderSubAccount),
		)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(tenantctx.WithScope(c.Request.Context(), sc))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func scopeFrom(c *gin.Context) (scope.Scope, error) {
	sc, ok := tenantctx.ScopeFromContext(c.Request.Context())
	if !ok {
		return scope.Scope{}, ErrUnauthorized
	}
	return sc, nil
}

func principalFrom(c *gin.Context) (principal.Principal, error) {
	p, ok := tenantctx.PrincipalFromContext(c.Request.Context())
	if !ok {
		return principal.Principal{}, ErrUnauthorized
	}
	return p, nil
}

// actorOf maps a principal to the operator-gate actor string. API keys act
// with system privileges; their tenant reach is already pinned by the
// resolved scope.
func actorOf(p principal.Principal) string {
	if p.IsUser() {
		return fmt.Sprintf("user:%s", p.UserID.String())
	}
	return "system"
}

func auditActorOf(p principal.Principal) (string, string) {
	switch p.Kind {
	case principal.KindUserSession, principal.KindUserKey:
		return "user", p.UserID.String()
	case principal.KindAgencyKey:
		return "api_key", scope.AgencyKey(p.AgencyID)
	default:
		return "api_key", scope.SubAccountKey(p.SubAccountID)
	}
}

func auditRecord(actorType, actorID, action, scopeKey string, details map[string]interface{}) auditdomain.Record {
	return auditdomain.Record{
		ActorType: actorType,
		ActorID:   actorID,
		Action:    action,
		ScopeKey:  scopeKey,
		Details:   details,
	}
}
