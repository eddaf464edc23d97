package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/gatehouse/internal/apikey/domain"
	"github.com/smallbiznis/gatehouse/internal/authorization"
	"github.com/smallbiznis/gatehouse/internal/principal"
)

type createAPIKeyRequest struct {
	Kind                 string   `json:"kind"`
	Name                 string   `json:"name"`
	SubAccountID         *string  `json:"subaccount_id,omitempty"`
	UserID               *string  `json:"user_id,omitempty"`
	AllowedSubAccountIDs []string `json:"allowed_subaccount_ids,omitempty"`
}

// CreateAPIKey issues a key for the caller's agency. The plaintext secret
// appears in this response and nowhere else.
func (s *Server) CreateAPIKey(c *gin.Context) {
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

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate); err != nil {
		AbortWithError(c, err)
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	create := apikeydomain.CreateRequest{
		Kind:     principal.Kind(strings.TrimSpace(req.Kind)),
		Name:     strings.TrimSpace(req.Name),
		AgencyID: sc.AgencyID,
	}
	if req.SubAccountID != nil {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.SubAccountID))
		if err != nil || id == 0 {
			AbortWithError(c, apikeydomain.ErrInvalidRequest)
			return
		}
		ok, err := s.memberships.SubAccountBelongsToAgency(c.Request.Context(), sc.AgencyID, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, apikeydomain.ErrInvalidRequest)
			return
		}
		create.SubAccountID = &id
	}
	if req.UserID != nil {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.UserID))
		if err != nil || id == 0 {
			AbortWithError(c, apikeydomain.ErrInvalidRequest)
			return
		}
		create.UserID = &id
	}
	for _, raw := range req.AllowedSubAccountIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id == 0 {
			AbortWithError(c, apikeydomain.ErrInvalidRequest)
			return
		}
		create.AllowedSubAccountIDs = append(create.AllowedSubAccountIDs, id)
	}

	key, secret, err := s.apikeys.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "api_key.create", sc.Key(), map[string]interface{}{
		"key_id": key.ID.String(),
		"kind":   string(key.Kind),
		"name":   key.Name,
	}))
	c.JSON(http.StatusCreated, gin.H{
		"key":    key,
		"secret": secret,
	})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
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

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke); err != nil {
		AbortWithError(c, err)
		return
	}

	keyID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || keyID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.apikeys.Revoke(c.Request.Context(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "api_key.revoke", sc.Key(), map[string]interface{}{
		"key_id": keyID.String(),
	}))
	c.Status(http.StatusNoContent)
}

// ListAuditEntries returns recent audit entries for the caller's scope,
// newest first.
func (s *Server) ListAuditEntries(c *gin.Context) {
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

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	entries, err := s.auditsvc.ListByScope(c.Request.Context(), sc.Key(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scope_key": sc.Key(),
		"entries":   entries,
	})
}
