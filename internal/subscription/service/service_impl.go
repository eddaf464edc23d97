package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) ActivePlanIDs(ctx context.Context, agencyID snowflake.ID) ([]string, error) {
	now := s.clock.Now()

	planIDs := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		planIDs = append(planIDs, id)
	}

	sub, err := s.repo.FindByAgencyID(ctx, s.db, agencyID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.IsEntitled(now) {
		add(sub.PriceID)
	}

	addOns, err := s.repo.ListAddOns(ctx, s.db, agencyID)
	if err != nil {
		return nil, err
	}
	for _, addOn := range addOns {
		if addOn.IsCurrent(now) {
			add(addOn.PriceID)
		}
	}

	return planIDs, nil
}

func (s *Service) State(ctx context.Context, agencyID snowflake.ID) (domain.State, error) {
	sub, err := s.repo.FindByAgencyID(ctx, s.db, agencyID)
	if err != nil {
		return domain.StateNone, err
	}
	if sub == nil || !sub.IsEntitled(s.clock.Now()) {
		return domain.StateNone, nil
	}
	if sub.Status == domain.StatusTrialing {
		return domain.StateTrial, nil
	}
	return domain.StateActive, nil
}
