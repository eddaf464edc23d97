package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/gatehouse/internal/authorization"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/permission"
	"github.com/smallbiznis/gatehouse/internal/permission/bundle"
	"go.uber.org/zap"
)

type replaceGrantsRequest struct {
	PermissionKeys []string `json:"permission_keys"`
}

// ReplaceRoleGrants swaps a role's grant set. Every key must pass the
// entitlement gate for the caller's scope; one unassignable key rejects the
// whole request so a role can never hold a grant its plan does not back.
func (s *Server) ReplaceRoleGrants(c *gin.Context) {
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

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectGrant, authorization.ActionGrantReplace); err != nil {
		AbortWithError(c, err)
		return
	}

	var req replaceGrantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entitlements, err := s.entitlements.Resolve(c.Request.Context(), entitlementdomain.ResolveRequest{Scope: sc})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	for _, raw := range req.PermissionKeys {
		key, err := permission.ParseKey(raw)
		if err != nil {
			AbortWithError(c, membershipdomain.ErrInvalidPermissionKey)
			return
		}
		if !s.gates.IsPermissionAssignable(string(key), entitlements) {
			AbortWithError(c, membershipdomain.ErrPermissionNotGated)
			return
		}
	}

	roleID := strings.TrimSpace(c.Param("id"))
	if err := s.memberships.ReplaceGrants(c.Request.Context(), membershipdomain.ReplaceGrantsRequest{
		RoleID:         roleID,
		PermissionKeys: req.PermissionKeys,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	parsedRoleID, err := snowflake.ParseString(roleID)
	if err == nil && parsedRoleID != 0 {
		if err := s.snapshots.InvalidateByRoleID(c.Request.Context(), parsedRoleID); err != nil {
			// The grants are committed; stale snapshots age out via TTL.
			s.log.Warn("snapshot invalidation after grant replace failed",
				zap.String("role_id", parsedRoleID.String()),
				zap.Error(err),
			)
		}
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "permission_grant.replace", sc.Key(), map[string]interface{}{
		"role_id":         roleID,
		"permission_keys": req.PermissionKeys,
	}))
	c.JSON(http.StatusOK, gin.H{
		"role_id":         roleID,
		"permission_keys": req.PermissionKeys,
	})
}

// GetPermissionBundles returns the catalog grouped into read/write/manage
// bundles, with each key's assignability under the scope's entitlements.
func (s *Server) GetPermissionBundles(c *gin.Context) {
	sc, err := scopeFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entitlements, err := s.entitlements.Resolve(c.Request.Context(), entitlementdomain.ResolveRequest{Scope: sc})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	catalog := permission.CatalogByCategory()
	byCategory := make(map[string][]bundle.Permission, len(catalog))
	assignable := make(map[string]bool)
	for category, keys := range catalog {
		perms := make([]bundle.Permission, 0, len(keys))
		for _, key := range keys {
			perms = append(perms, bundle.Permission{ID: string(key), Key: key})
			assignable[string(key)] = s.gates.IsPermissionAssignable(string(key), entitlements)
		}
		byCategory[category] = perms
	}

	c.JSON(http.StatusOK, gin.H{
		"scope_key":  sc.Key(),
		"categories": bundle.Build(byCategory),
		"assignable": assignable,
	})
}

// GetSnapshot returns the caller's access snapshot at the scope, rebuilding
// on demand. No membership yields 404 rather than an empty snapshot.
func (s *Server) GetSnapshot(c *gin.Context) {
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
	if !p.IsUser() {
		AbortWithError(c, ErrForbidden)
		return
	}

	snap, err := s.snapshots.Get(c.Request.Context(), p.UserID, sc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if snap == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type invalidateSnapshotsRequest struct {
	UserID string `json:"user_id,omitempty"`
	RoleID string `json:"role_id,omitempty"`
}

// InvalidateSnapshots drops snapshots either for one user at the caller's
// scope or for every user holding a role.
func (s *Server) InvalidateSnapshots(c *gin.Context) {
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

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectSnapshot, authorization.ActionSnapshotInvalidate); err != nil {
		AbortWithError(c, err)
		return
	}

	var req invalidateSnapshotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	switch {
	case strings.TrimSpace(req.RoleID) != "":
		roleID, err := snowflake.ParseString(strings.TrimSpace(req.RoleID))
		if err != nil || roleID == 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		if err := s.snapshots.InvalidateByRoleID(c.Request.Context(), roleID); err != nil {
			AbortWithError(c, err)
			return
		}
	case strings.TrimSpace(req.UserID) != "":
		userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
		if err != nil || userID == 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		if err := s.snapshots.Invalidate(c.Request.Context(), userID, sc.Key()); err != nil {
			AbortWithError(c, err)
			return
		}
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "access_snapshot.invalidate", sc.Key(), map[string]interface{}{
		"user_id": req.UserID,
		"role_id": req.RoleID,
	}))
	c.Status(http.StatusNoContent)
}
