package service

import (
	"context"
	"fmt"

	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/permission/gate"
	"github.com/smallbiznis/gatehouse/internal/policy/domain"
	snapshotdomain "github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	subscriptiondomain "github.com/smallbiznis/gatehouse/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Memberships   membershipdomain.Service
	Snapshots     snapshotdomain.Service
	Entitlements  entitlementdomain.Service
	Subscriptions subscriptiondomain.Service
	Gates         *gate.Table
	Usage         domain.UsageChecker `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	memberships   membershipdomain.Service
	snapshots     snapshotdomain.Service
	entitlements  entitlementdomain.Service
	subscriptions subscriptiondomain.Service
	gates         *gate.Table
	usage         domain.UsageChecker
}

func New(p Params) domain.Service {
	return &Service{
		log:           p.Log.Named("policy.service"),
		memberships:   p.Memberships,
		snapshots:     p.Snapshots,
		entitlements:  p.Entitlements,
		subscriptions: p.Subscriptions,
		gates:         p.Gates,
		usage:         p.Usage,
	}
}

// CanPerform runs the four-stage pipeline: membership, permission,
// subscription, usage. Stages are strictly sequential and short-circuiting;
// a later stage never runs once an earlier one denied. The function is
// read-only: consuming quota is a separate call made after an allowed
// decision.
func (s *Service) CanPerform(ctx context.Context, req domain.CanPerformRequest) (domain.Decision, error) {
	if err := req.Scope.Validate(); err != nil {
		return domain.Decision{}, err
	}

	state, err := s.subscriptions.State(ctx, req.Scope.AgencyID)
	if err != nil {
		return domain.Decision{}, err
	}
	decision := domain.Decision{
		Suggestion:        domain.SuggestionNone,
		SubscriptionState: state,
	}

	ok, err := s.memberships.HasActiveMembership(ctx, req.Scope, req.UserID)
	if err != nil {
		return domain.Decision{}, err
	}
	if !ok {
		decision.Reason = domain.ReasonNoMembership
		decision.Message = "no active membership at this scope"
		return decision, nil
	}

	snap, err := s.snapshots.Get(ctx, req.UserID, req.Scope)
	if err != nil {
		return domain.Decision{}, err
	}
	held := make(map[string]struct{})
	if snap != nil {
		for _, key := range snap.PermissionKeys {
			held[key] = struct{}{}
		}
	}
	_, decision.HasBillingAccess = held[domain.BillingManagePermission]

	if len(req.RequiredPermissionKeys) > 0 {
		allowed, missing, err := s.checkPermissions(ctx, req, held)
		if err != nil {
			return domain.Decision{}, err
		}
		if !allowed {
			decision.Reason = domain.ReasonNoPermission
			decision.Message = fmt.Sprintf("missing permission %s", missing)
			return decision, nil
		}
	}

	if req.RequireActiveSubscription == nil || *req.RequireActiveSubscription {
		if state != subscriptiondomain.StateActive && state != subscriptiondomain.StateTrial {
			decision.Reason = domain.ReasonNoSubscription
			decision.Message = "no active subscription"
			decision.Suggestion = domain.SuggestionContactAdmin
			if decision.HasBillingAccess {
				decision.Suggestion = domain.SuggestionUpgrade
			}
			return decision, nil
		}
	}

	if req.FeatureKey != "" && s.usage != nil {
		quantity := req.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		verdict, err := s.usage.Check(ctx, domain.UsageCheckRequest{
			Scope:      req.Scope,
			FeatureKey: req.FeatureKey,
			Quantity:   quantity,
			ActionKey:  req.ActionKey,
		})
		if err != nil {
			return domain.Decision{}, err
		}
		decision.Usage = &verdict
		if !verdict.Allowed {
			decision.Reason, decision.Suggestion = mapUsageDenial(verdict.Reason, decision.HasBillingAccess)
			decision.Message = verdict.Message
			return decision, nil
		}
	}

	decision.Allowed = true
	return decision, nil
}

// checkPermissions verifies every required key is held at the scope, with
// paid-namespace keys additionally gated on current entitlements. Raw grants
// never bypass entitlement gating: a revoked plan denies a still-granted key
// at read time.
func (s *Service) checkPermissions(ctx context.Context, req domain.CanPerformRequest, held map[string]struct{}) (bool, string, error) {
	var entitlements map[string]entitlementdomain.Effective
	for _, key := range req.RequiredPermissionKeys {
		if _, ok := held[key]; !ok {
			return false, key, nil
		}
		if s.gates.ForKey(key) == nil && !s.isPaid(key) {
			continue
		}
		if entitlements == nil {
			var err error
			entitlements, err = s.entitlements.Resolve(ctx, entitlementdomain.ResolveRequest{Scope: req.Scope})
			if err != nil {
				return false, "", err
			}
		}
		if !s.gates.IsPermissionAssignable(key, entitlements) {
			return false, key, nil
		}
	}
	return true, "", nil
}

func (s *Service) isPaid(key string) bool {
	for _, prefix := range s.gates.PaidPrefixes() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func mapUsageDenial(reason domain.Reason, hasBillingAccess bool) (domain.Reason, domain.Suggestion) {
	actionable := domain.SuggestionContactAdmin
	switch reason {
	case domain.ReasonFeatureDisabled:
		if hasBillingAccess {
			actionable = domain.SuggestionUpgrade
		}
		return domain.ReasonFeatureDisabled, actionable
	case domain.ReasonInsufficientCredits:
		if hasBillingAccess {
			actionable = domain.SuggestionTopUp
		}
		return domain.ReasonInsufficientCredits, actionable
	default:
		if hasBillingAccess {
			actionable = domain.SuggestionUpgrade
		}
		return domain.ReasonLimitExceeded, actionable
	}
}
