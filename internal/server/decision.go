package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/gatehouse/internal/authorization"
	policydomain "github.com/smallbiznis/gatehouse/internal/policy/domain"
	usagedomain "github.com/smallbiznis/gatehouse/internal/usage/domain"
)

type decisionRequest struct {
	UserID                    string   `json:"user_id,omitempty"`
	RequiredPermissionKeys    []string `json:"required_permission_keys"`
	RequireActiveSubscription *bool    `json:"require_active_subscription,omitempty"`
	FeatureKey                string   `json:"feature_key,omitempty"`
	Quantity                  int64    `json:"quantity,omitempty"`
	ActionKey                 string   `json:"action_key,omitempty"`
}

// PostDecision is the single policy question: may this user perform this
// action at this scope right now.
func (s *Server) PostDecision(c *gin.Context) {
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

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	userID := p.UserID
	if !p.IsUser() {
		// Service keys ask on behalf of a user they name explicitly.
		parsed, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
		if err != nil || parsed == 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		userID = parsed
	}

	decision, err := s.policies.CanPerform(c.Request.Context(), policydomain.CanPerformRequest{
		Scope:                     sc,
		UserID:                    userID,
		RequiredPermissionKeys:    req.RequiredPermissionKeys,
		RequireActiveSubscription: req.RequireActiveSubscription,
		FeatureKey:                strings.TrimSpace(req.FeatureKey),
		Quantity:                  req.Quantity,
		ActionKey:                 strings.TrimSpace(req.ActionKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordDecision(decision.Allowed, string(decision.Reason))
	c.JSON(http.StatusOK, decision)
}

type consumeRequest struct {
	FeatureKey string `json:"feature_key"`
	Quantity   int64  `json:"quantity"`
	ActionKey  string `json:"action_key,omitempty"`
}

// ConsumeUsage records consumption after an allowed decision. It is an
// explicit second call so a denied action never burns quota.
func (s *Server) ConsumeUsage(c *gin.Context) {
	sc, err := scopeFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.usagesvc.Consume(c.Request.Context(), usagedomain.ConsumeRequest{
		Scope:      sc,
		FeatureKey: req.FeatureKey,
		Quantity:   req.Quantity,
		ActionKey:  req.ActionKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (s *Server) GetCreditBalance(c *gin.Context) {
	sc, err := scopeFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	featureKey := strings.TrimSpace(c.Query("feature_key"))
	if featureKey == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.usagesvc.Balance(c.Request.Context(), sc.AgencyID, featureKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agency_id":   sc.AgencyID.String(),
		"feature_key": featureKey,
		"balance":     balance,
	})
}

type topUpRequest struct {
	FeatureKey string `json:"feature_key"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) TopUpCredits(c *gin.Context) {
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

	if err := s.authz.Authorize(c.Request.Context(), actorOf(p), sc.AgencyID.String(), authorization.ObjectCreditLedger, authorization.ActionCreditTopUp); err != nil {
		AbortWithError(c, err)
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		AbortWithError(c, usagedomain.ErrInvalidTopUp)
		return
	}

	entry, err := s.usagesvc.TopUp(c.Request.Context(), usagedomain.TopUpRequest{
		AgencyID:   sc.AgencyID,
		FeatureKey: req.FeatureKey,
		Amount:     amount,
		Reason:     req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorType, actorID := auditActorOf(p)
	s.auditsvc.Record(c.Request.Context(), auditRecord(actorType, actorID, "credit.topup", sc.Key(), map[string]interface{}{
		"feature_key": entry.FeatureKey,
		"delta":       entry.Delta.String(),
	}))
	c.JSON(http.StatusCreated, entry)
}
