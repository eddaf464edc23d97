package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	subscriptiondomain "github.com/smallbiznis/gatehouse/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           domain.Repository
	MembershipRepo membershipdomain.Repository
	Subscriptions  subscriptiondomain.Service
	Clock          clock.Clock
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           domain.Repository
	membershipRepo membershipdomain.Repository
	subscriptions  subscriptiondomain.Service
	clock          clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("entitlement.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		membershipRepo: p.MembershipRepo,
		subscriptions:  p.Subscriptions,
		clock:          p.Clock,
	}
}

func (s *Service) Resolve(ctx context.Context, req domain.ResolveRequest) (map[string]domain.Effective, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, domain.ErrInvalidScope
	}
	now := s.clock.Now()

	planIDs, err := s.subscriptions.ActivePlanIDs(ctx, req.Scope.AgencyID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListPlanFeatures(ctx, s.db, planIDs)
	if err != nil {
		return nil, err
	}

	// Group plan rows per feature key, preserving discovery order.
	keyOrder := make([]string, 0, len(rows))
	byKey := make(map[string][]domain.PlanFeature, len(rows))
	for _, row := range rows {
		if _, ok := byKey[row.FeatureKey]; !ok {
			keyOrder = append(keyOrder, row.FeatureKey)
		}
		byKey[row.FeatureKey] = append(byKey[row.FeatureKey], row)
	}

	agencyOverrides, subOverrides, err := s.loadOverrides(ctx, req, now)
	if err != nil {
		return nil, err
	}

	// Catalog rows for every key touched by a plan or an override.
	catalogKeys := append([]string(nil), keyOrder...)
	for key := range agencyOverrides {
		if _, ok := byKey[key]; !ok {
			catalogKeys = append(catalogKeys, key)
		}
	}
	for key := range subOverrides {
		if _, ok := byKey[key]; !ok {
			if _, seen := agencyOverrides[key]; !seen {
				catalogKeys = append(catalogKeys, key)
			}
		}
	}
	features, err := s.repo.ListFeaturesByKeys(ctx, s.db, catalogKeys)
	if err != nil {
		return nil, err
	}
	catalog := make(map[string]domain.Feature, len(features))
	for _, f := range features {
		catalog[f.Key] = f
	}

	result := make(map[string]domain.Effective, len(byKey))

	for _, key := range keyOrder {
		merged := domain.MergePlanFeatures(byKey[key])
		feature, ok := catalog[key]
		if !ok {
			// Plan rows may reference keys not yet in the catalog;
			// carry them through with key-only metadata.
			feature = domain.Feature{Key: key, ValueType: domain.ValueTypeBoolean}
		}

		eff := domain.Normalize(feature, merged, nil)
		if ov, ok := agencyOverrides[key]; ok {
			eff = domain.ApplyOverride(eff, ov)
		}
		if ov, ok := subOverrides[key]; ok {
			eff = domain.ApplyOverride(eff, ov)
		}
		result[key] = eff
	}

	// Overrides for features the plan does not offer surface as synthetic
	// entries so an override is never silently dropped.
	s.synthesizeOrphans(result, catalog, agencyOverrides, subOverrides)

	return result, nil
}

func (s *Service) synthesizeOrphans(
	result map[string]domain.Effective,
	catalog map[string]domain.Feature,
	agencyOverrides map[string]domain.Override,
	subOverrides map[string]domain.Override,
) {
	for key, ov := range agencyOverrides {
		if _, ok := result[key]; ok {
			continue
		}
		feature, ok := catalog[key]
		if !ok {
			s.log.Warn("override references unknown feature", zap.String("feature_key", key))
			continue
		}
		eff := domain.Synthesize(feature, ov)
		if sub, ok := subOverrides[key]; ok {
			eff = domain.ApplyOverride(eff, sub)
		}
		result[key] = eff
	}
	for key, ov := range subOverrides {
		if _, ok := result[key]; ok {
			continue
		}
		feature, ok := catalog[key]
		if !ok {
			s.log.Warn("override references unknown feature", zap.String("feature_key", key))
			continue
		}
		result[key] = domain.Synthesize(feature, ov)
	}
}

// loadOverrides returns the agency- and subaccount-layer overrides keyed by
// feature, honoring the inheritance setting for subaccount scopes. The layer
// split guarantees agency overrides are applied before subaccount overrides
// regardless of store ordering.
func (s *Service) loadOverrides(ctx context.Context, req domain.ResolveRequest, now time.Time) (map[string]domain.Override, map[string]domain.Override, error) {
	agencyLayer := make(map[string]domain.Override)
	subLayer := make(map[string]domain.Override)

	if req.Scope.Level() == scope.LevelAgency {
		rows, err := s.repo.ListAgencyOverrides(ctx, s.db, req.Scope.AgencyID, now)
		if err != nil {
			return nil, nil, err
		}
		for _, ov := range rows {
			agencyLayer[ov.FeatureKey] = ov
		}
		return agencyLayer, subLayer, nil
	}

	inherit, err := s.resolveInheritance(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if inherit {
		rows, err := s.repo.ListAgencyOverrides(ctx, s.db, req.Scope.AgencyID, now)
		if err != nil {
			return nil, nil, err
		}
		for _, ov := range rows {
			agencyLayer[ov.FeatureKey] = ov
		}
	}

	rows, err := s.repo.ListSubAccountOverrides(ctx, s.db, req.Scope.SubAccountID, now)
	if err != nil {
		return nil, nil, err
	}
	for _, ov := range rows {
		subLayer[ov.FeatureKey] = ov
	}
	return agencyLayer, subLayer, nil
}

// resolveInheritance decides whether a subaccount resolution inherits
// agency-scoped overrides: explicit call argument, then the subaccount
// setting, then the agency setting, then the global default (inherit). The
// subaccount setting is authoritative over the agency setting when both
// exist, consistent with most-specific-scope-wins everywhere else.
func (s *Service) resolveInheritance(ctx context.Context, req domain.ResolveRequest) (bool, error) {
	if req.InheritAgencyOverrides != nil {
		return *req.InheritAgencyOverrides, nil
	}

	sub, err := s.membershipRepo.FindSubAccount(ctx, s.db, req.Scope.SubAccountID)
	if err != nil {
		return false, err
	}
	if sub != nil && sub.InheritEntitlementOverrides != nil {
		return *sub.InheritEntitlementOverrides, nil
	}

	agency, err := s.membershipRepo.FindAgency(ctx, s.db, req.Scope.AgencyID)
	if err != nil {
		return false, err
	}
	if agency != nil && agency.InheritEntitlementOverrides != nil {
		return *agency.InheritEntitlementOverrides, nil
	}

	return true, nil
}

func (s *Service) PutOverride(ctx context.Context, req domain.PutOverrideRequest) (*domain.Override, error) {
	featureKey := strings.ToLower(strings.TrimSpace(req.FeatureKey))
	if featureKey == "" {
		return nil, domain.ErrInvalidFeatureKey
	}
	feature, err := s.repo.FindFeatureByKey(ctx, s.db, featureKey)
	if err != nil {
		return nil, err
	}
	if feature == nil {
		return nil, domain.ErrFeatureNotFound
	}

	agencyID, err := snowflake.ParseString(strings.TrimSpace(req.AgencyID))
	if err != nil || agencyID == 0 {
		return nil, domain.ErrInvalidScope
	}

	override := domain.Override{
		AgencyID:   agencyID,
		FeatureKey: featureKey,
	}

	switch strings.ToUpper(strings.TrimSpace(req.Scope)) {
	case string(domain.OverrideScopeAgency):
		override.Scope = domain.OverrideScopeAgency
	case string(domain.OverrideScopeSubAccount):
		if req.SubAccountID == nil {
			return nil, domain.ErrInvalidScope
		}
		subID, err := snowflake.ParseString(strings.TrimSpace(*req.SubAccountID))
		if err != nil || subID == 0 {
			return nil, domain.ErrInvalidScope
		}
		override.Scope = domain.OverrideScopeSubAccount
		override.SubAccountID = &subID
	default:
		return nil, domain.ErrInvalidScope
	}

	startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartsAt))
	if err != nil {
		return nil, domain.ErrInvalidOverride
	}
	override.StartsAt = startsAt.UTC()
	if req.EndsAt != nil {
		endsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.EndsAt))
		if err != nil || !endsAt.After(startsAt) {
			return nil, domain.ErrInvalidOverride
		}
		utc := endsAt.UTC()
		override.EndsAt = &utc
	}

	override.IsEnabled = req.IsEnabled
	override.IsUnlimited = req.IsUnlimited
	override.MaxOverrideInt = req.MaxOverrideInt
	override.MaxDeltaInt = req.MaxDeltaInt

	if override.MaxOverrideDec, err = parseDec(req.MaxOverrideDec); err != nil {
		return nil, domain.ErrInvalidOverride
	}
	if override.MaxDeltaDec, err = parseDec(req.MaxDeltaDec); err != nil {
		return nil, domain.ErrInvalidOverride
	}

	if override.IsEnabled == nil && override.IsUnlimited == nil &&
		override.MaxOverrideInt == nil && override.MaxOverrideDec == nil &&
		override.MaxDeltaInt == nil && override.MaxDeltaDec == nil {
		return nil, domain.ErrInvalidOverride
	}

	now := s.clock.Now()
	if req.ID != "" {
		id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
		if err != nil || id == 0 {
			return nil, domain.ErrInvalidID
		}
		override.ID = id
	} else {
		override.ID = s.genID.Generate()
		override.CreatedAt = now
	}
	override.UpdatedAt = now

	if err := s.repo.UpsertOverride(ctx, s.db, &override); err != nil {
		return nil, err
	}
	return &override, nil
}

func (s *Service) DeleteOverride(ctx context.Context, id string) error {
	overrideID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || overrideID == 0 {
		return domain.ErrInvalidID
	}
	return s.repo.DeleteOverride(ctx, s.db, overrideID)
}

func parseDec(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &value, nil
}
