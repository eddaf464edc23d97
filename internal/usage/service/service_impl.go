package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParams) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Consume(ctx context.Context, req domain.ConsumeRequest) (*domain.UsageRecord, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, domain.ErrInvalidConsume
	}
	featureKey := strings.ToLower(strings.TrimSpace(req.FeatureKey))
	if featureKey == "" || req.Quantity <= 0 {
		return nil, domain.ErrInvalidConsume
	}

	record := &domain.UsageRecord{
		ID:         s.genID.Generate(),
		ScopeKey:   req.Scope.Key(),
		AgencyID:   req.Scope.AgencyID,
		FeatureKey: featureKey,
		Quantity:   req.Quantity,
		RecordedAt: s.clock.Now(),
	}
	if action := strings.TrimSpace(req.ActionKey); action != "" {
		record.ActionKey = &action
	}

	if err := s.repo.RecordUsage(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) TopUp(ctx context.Context, req domain.TopUpRequest) (*domain.CreditLedgerEntry, error) {
	featureKey := strings.ToLower(strings.TrimSpace(req.FeatureKey))
	if req.AgencyID == 0 || featureKey == "" || !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidTopUp
	}

	entry := &domain.CreditLedgerEntry{
		ID:         s.genID.Generate(),
		AgencyID:   req.AgencyID,
		FeatureKey: featureKey,
		Delta:      req.Amount,
		Reason:     strings.TrimSpace(req.Reason),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.AppendCredit(ctx, s.db, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Balance(ctx context.Context, agencyID snowflake.ID, featureKey string) (decimal.Decimal, error) {
	return s.repo.CreditBalance(ctx, s.db, agencyID, strings.ToLower(strings.TrimSpace(featureKey)))
}
