package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	featureflagdomain "github.com/smallbiznis/gatehouse/internal/featureflag/domain"
)

// GetFeatureFlags returns the caller's per-feature flag view: entitlement,
// toggleability and the stored preference collapsed into one effective bit.
func (s *Server) GetFeatureFlags(c *gin.Context) {
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

	flags, err := s.featureflags.GetFeatureFlags(c.Request.Context(), p.UserID, sc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scope_key": sc.Key(),
		"flags":     flags,
	})
}

type toggleFlagRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) ToggleFeatureFlag(c *gin.Context) {
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

	var req toggleFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	state, err := s.featureflags.ToggleUserFeature(c.Request.Context(), featureflagdomain.ToggleRequest{
		UserID:     p.UserID,
		Scope:      sc,
		FeatureKey: c.Param("key"),
		Enabled:    req.Enabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditsvc.Record(c.Request.Context(), auditRecord("user", p.UserID.String(), "feature_flag.toggle", sc.Key(), map[string]interface{}{
		"feature_key": state.FeatureKey,
		"enabled":     state.UserEnabled,
	}))
	c.JSON(http.StatusOK, state)
}
