package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	policydomain "github.com/smallbiznis/gatehouse/internal/policy/domain"
	"github.com/smallbiznis/gatehouse/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         domain.Repository
	Entitlements entitlementdomain.Service
}

// Checker is the built-in metered-usage collaborator: it answers from the
// usage and credit tables against the scope's resolved entitlement caps.
type Checker struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         domain.Repository
	entitlements entitlementdomain.Service
}

func New(p Params) policydomain.UsageChecker {
	return &Checker{
		db:           p.DB,
		log:          p.Log.Named("usage.checker"),
		repo:         p.Repo,
		entitlements: p.Entitlements,
	}
}

func (c *Checker) Check(ctx context.Context, req policydomain.UsageCheckRequest) (policydomain.UsageDecision, error) {
	entitlements, err := c.entitlements.Resolve(ctx, entitlementdomain.ResolveRequest{Scope: req.Scope})
	if err != nil {
		return policydomain.UsageDecision{}, err
	}
	eff, ok := entitlements[req.FeatureKey]
	if !ok || !eff.IsEnabled {
		return policydomain.UsageDecision{
			Reason:  policydomain.ReasonFeatureDisabled,
			Message: fmt.Sprintf("feature %s is not enabled for this plan", req.FeatureKey),
		}, nil
	}
	if eff.IsUnlimited {
		return policydomain.UsageDecision{Allowed: true}, nil
	}

	cap := effectiveCap(eff)
	if cap == nil {
		// An enabled quantity feature with no cap behaves as uncapped.
		return policydomain.UsageDecision{Allowed: true}, nil
	}

	used, err := c.repo.SumUsage(ctx, c.db, req.Scope.Key(), req.FeatureKey)
	if err != nil {
		return policydomain.UsageDecision{}, err
	}

	remaining := *cap - used
	if remaining >= req.Quantity {
		left := remaining - req.Quantity
		return policydomain.UsageDecision{Allowed: true, Remaining: &left}, nil
	}

	if eff.Feature.CreditFunded {
		balance, err := c.repo.CreditBalance(ctx, c.db, req.Scope.AgencyID, req.FeatureKey)
		if err != nil {
			return policydomain.UsageDecision{}, err
		}
		shortfall := decimal.NewFromInt(req.Quantity - max64(remaining, 0))
		if balance.GreaterThanOrEqual(shortfall) {
			zero := int64(0)
			return policydomain.UsageDecision{Allowed: true, Remaining: &zero}, nil
		}
		return policydomain.UsageDecision{
			Reason:  policydomain.ReasonInsufficientCredits,
			Message: fmt.Sprintf("credit balance %s below required %s", balance, shortfall),
		}, nil
	}

	if eff.Enforcement == entitlementdomain.EnforcementSoft {
		c.log.Info("soft cap exceeded",
			zap.String("feature_key", req.FeatureKey),
			zap.Int64("used", used),
			zap.Int64("cap", *cap),
		)
		return policydomain.UsageDecision{Allowed: true, Remaining: &remaining}, nil
	}

	return policydomain.UsageDecision{
		Reason:    policydomain.ReasonLimitExceeded,
		Remaining: &remaining,
		Message:   fmt.Sprintf("usage %d of %d, requested %d", used, *cap, req.Quantity),
	}, nil
}

// effectiveCap returns the integer allowance: the explicit max when present,
// else the included amount, else the decimal cap truncated to units.
func effectiveCap(eff entitlementdomain.Effective) *int64 {
	if eff.MaxInt != nil {
		return eff.MaxInt
	}
	if eff.IncludedInt != nil {
		return eff.IncludedInt
	}
	if eff.MaxDec != nil {
		v := eff.MaxDec.IntPart()
		return &v
	}
	if eff.IncludedDec != nil {
		v := eff.IncludedDec.IntPart()
		return &v
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
