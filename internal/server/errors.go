package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/gatehouse/internal/apikey/domain"
	"github.com/smallbiznis/gatehouse/internal/authorization"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	featureflagdomain "github.com/smallbiznis/gatehouse/internal/featureflag/domain"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"github.com/smallbiznis/gatehouse/internal/tenantctx"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var ctxErr *tenantctx.ContextError
	if errors.As(err, &ctxErr) {
		return ctxErr.StatusHint, errorPayload{
			Type:    "context_error",
			Code:    ctxErr.Code,
			Message: ctxErr.Message,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrInvalidKey):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "invalid request",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, scope.ErrInvalidScope),
		errors.Is(err, membershipdomain.ErrInvalidScope),
		errors.Is(err, membershipdomain.ErrInvalidRoleID),
		errors.Is(err, membershipdomain.ErrInvalidPermissionKey),
		errors.Is(err, membershipdomain.ErrPermissionNotGated),
		errors.Is(err, entitlementdomain.ErrInvalidScope),
		errors.Is(err, entitlementdomain.ErrInvalidFeatureKey),
		errors.Is(err, entitlementdomain.ErrInvalidOverride),
		errors.Is(err, entitlementdomain.ErrInvalidID),
		errors.Is(err, featureflagdomain.ErrNotToggleable),
		errors.Is(err, featureflagdomain.ErrNotEntitled),
		errors.Is(err, featureflagdomain.ErrUnknownKey),
		errors.Is(err, apikeydomain.ErrInvalidRequest):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, membershipdomain.ErrRoleNotFound),
		errors.Is(err, entitlementdomain.ErrFeatureNotFound),
		errors.Is(err, entitlementdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
