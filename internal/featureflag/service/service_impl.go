package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	"github.com/smallbiznis/gatehouse/internal/featureflag/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Entitlements entitlementdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	entitlements entitlementdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("featureflag.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		entitlements: p.Entitlements,
	}
}

func (s *Service) GetFeatureFlags(ctx context.Context, userID snowflake.ID, sc scope.Scope) ([]domain.FlagState, error) {
	entitlements, err := s.entitlements.Resolve(ctx, entitlementdomain.ResolveRequest{Scope: sc})
	if err != nil {
		return nil, err
	}

	prefs, err := s.repo.ListPreferences(ctx, s.db, userID, sc.Key())
	if err != nil {
		return nil, err
	}
	prefByKey := make(map[string]bool, len(prefs))
	for _, p := range prefs {
		prefByKey[p.FeatureKey] = p.Enabled
	}

	flags := make([]domain.FlagState, 0, len(entitlements))
	for key, eff := range entitlements {
		userEnabled, hasPref := prefByKey[key]
		if !hasPref {
			userEnabled = eff.Feature.DefaultEnabled
		}
		flags = append(flags, domain.FlagState{
			FeatureKey:       key,
			Name:             eff.Feature.Name,
			Entitled:         eff.IsEnabled,
			IsToggleable:     eff.Feature.IsToggleable,
			UserEnabled:      userEnabled,
			EffectiveEnabled: eff.IsEnabled && userEnabled,
		})
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].FeatureKey < flags[j].FeatureKey })
	return flags, nil
}

func (s *Service) ToggleUserFeature(ctx context.Context, req domain.ToggleRequest) (*domain.FlagState, error) {
	featureKey := strings.ToLower(strings.TrimSpace(req.FeatureKey))
	if featureKey == "" {
		return nil, domain.ErrUnknownKey
	}

	entitlements, err := s.entitlements.Resolve(ctx, entitlementdomain.ResolveRequest{Scope: req.Scope})
	if err != nil {
		return nil, err
	}
	eff, ok := entitlements[featureKey]
	if !ok || !eff.IsEnabled {
		return nil, domain.ErrNotEntitled
	}
	if !eff.Feature.IsToggleable {
		return nil, domain.ErrNotToggleable
	}

	scopeKey := req.Scope.Key()
	pref, err := s.repo.FindPreference(ctx, s.db, req.UserID, scopeKey, featureKey)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = &domain.UserFeaturePreference{
			ID:         s.genID.Generate(),
			UserID:     req.UserID,
			ScopeKey:   scopeKey,
			AgencyID:   req.Scope.AgencyID,
			FeatureKey: featureKey,
		}
		if req.Scope.SubAccountID != 0 {
			sub := req.Scope.SubAccountID
			pref.SubAccountID = &sub
		}
	}
	pref.Enabled = req.Enabled
	if err := s.repo.Upsert(ctx, s.db, pref); err != nil {
		return nil, err
	}

	return &domain.FlagState{
		FeatureKey:       featureKey,
		Name:             eff.Feature.Name,
		Entitled:         eff.IsEnabled,
		IsToggleable:     true,
		UserEnabled:      req.Enabled,
		EffectiveEnabled: eff.IsEnabled && req.Enabled,
	}, nil
}
