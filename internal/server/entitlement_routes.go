package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/gatehouse/internal/authorization"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
)

// GetEntitlements resolves the effective entitlement map for the caller's
// scope. The optional inherit query parameter forces or suppresses agency
// override inheritance for a subaccount scope.
func (s *Server) GetEntitlements(c *gin.Context) {
	sc, err := scopeFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := entitlementdomain.ResolveRequest{Scope: sc}
	if raw := strings.TrimSpace(c.Query("inherit")); raw != "" {
		inherit, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.InheritAgencyOverrides = &inherit
	}

	entitlements, err := s.entitlements.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scope_key":    sc.Key(),
		"entitlements": entitlements,
	})
}

func (s *Server) PutEntitlementOverride(c *gin.Context) {
	sc, err := scopeFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	p, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectOverride, authorization.ActionOverridePut); err != nil {
		AbortWithError(c, err)
		return
	}

	var req entitlementdomain.PutOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	// An override can only target the agency the caller is acting in.
	req.AgencyID = sc.AgencyID.String()

	override, err := s.entitlements.PutOverride(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "entitlement_override.put", sc.Key(), map[string]interface{}{
		"override_id": override.ID.String(),
		"feature_key": override.FeatureKey,
		"scope":       string(override.Scope),
	}))
	c.JSON(http.StatusOK, override)
}

func (s *Server) DeleteEntitlementOverride(c *gin.Context) {
	sc, err := scopeFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	p, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectOverride, authorization.ActionOverrideDelete); err != nil {
		AbortWithError(c, err)
		return
	}

	overrideID := c.Param("id")
	if err := s.entitlements.DeleteOverride(c.Request.Context(), overrideID); err != nil {
		AbortWithError(c, err)
		return
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "entitlement_override.delete", sc.Key(), map[string]interface{}{
		"override_id": overrideID,
	}))
	c.Status(http.StatusNoContent)
}
