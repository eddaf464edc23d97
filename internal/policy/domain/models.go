package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/scope"
	subscriptiondomain "github.com/smallbiznis/gatehouse/internal/subscription/domain"
)

type Reason string

const (
	ReasonNoMembership        Reason = "NO_MEMBERSHIP"
	ReasonNoPermission        Reason = "NO_PERMISSION"
	ReasonNoSubscription      Reason = "NO_SUBSCRIPTION"
	ReasonFeatureDisabled     Reason = "FEATURE_DISABLED"
	ReasonInsufficientCredits Reason = "INSUFFICIENT_CREDITS"
	ReasonLimitExceeded       Reason = "LIMIT_EXCEEDED"
)

type Suggestion string

const (
	SuggestionNone         Suggestion = "NONE"
	SuggestionUpgrade      Suggestion = "UPGRADE"
	SuggestionTopUp        Suggestion = "TOPUP"
	SuggestionContactAdmin Suggestion = "CONTACT_ADMIN"
)

// BillingManagePermission marks a caller who can act on an upsell
// themselves; without it a deny never suggests an upgrade path.
const BillingManagePermission = "agency.billing.manage"

type CanPerformRequest struct {
	Scope  scope.Scope
	UserID snowflake.ID

	RequiredPermissionKeys []string

	// RequireActiveSubscription defaults to true when nil.
	RequireActiveSubscription *bool

	// FeatureKey triggers the metered-usage stage when non-empty.
	FeatureKey string
	Quantity   int64
	ActionKey  string
}

// Decision is the single allow/deny answer. Every denying branch still
// carries the subscription state and billing access so the caller can
// render a precise upsell without a second round trip.
type Decision struct {
	Allowed    bool       `json:"allowed"`
	Reason     Reason     `json:"reason,omitempty"`
	Message    string     `json:"message,omitempty"`
	Suggestion Suggestion `json:"suggestion"`

	SubscriptionState subscriptiondomain.State `json:"subscription_state"`
	HasBillingAccess  bool                     `json:"has_billing_access"`

	Usage *UsageDecision `json:"usage,omitempty"`
}

// UsageDecision is the metered-usage checker's verdict, surfaced verbatim
// so callers can show remaining quota.
type UsageDecision struct {
	Allowed   bool   `json:"allowed"`
	Reason    Reason `json:"reason,omitempty"`
	Remaining *int64 `json:"remaining,omitempty"`
	Message   string `json:"message,omitempty"`
}

type UsageCheckRequest struct {
	Scope      scope.Scope
	FeatureKey string
	Quantity   int64
	ActionKey  string
}

// UsageChecker is the external metered-usage collaborator. The engine only
// reads a verdict; consuming quota is a separate explicit call made after an
// allowed decision.
type UsageChecker interface {
	Check(ctx context.Context, req UsageCheckRequest) (UsageDecision, error)
}

type Service interface {
	CanPerform(ctx context.Context, req CanPerformRequest) (Decision, error)
}
