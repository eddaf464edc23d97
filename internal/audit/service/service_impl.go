package service

import (
	"context"
	"crypto/rand"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/gatehouse/internal/audit/domain"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:   p.Log.Named("audit.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, rec domain.Record) {
	now := s.clock.Now()
	entry := &domain.Entry{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ActorType: rec.ActorType,
		ActorID:   rec.ActorID,
		Action:    rec.Action,
		ScopeKey:  rec.ScopeKey,
		Details:   datatypes.JSONMap(rec.Details),
		CreatedAt: now,
	}
	if err := s.repo.Append(ctx, s.db, entry); err != nil {
		s.log.Error("append audit entry",
			zap.String("action", rec.Action),
			zap.String("scope_key", rec.ScopeKey),
			zap.Error(err),
		)
	}
}

func (s *Service) ListByScope(ctx context.Context, scopeKey string, limit int) ([]domain.Entry, error) {
	return s.repo.ListByScope(ctx, s.db, scopeKey, limit)
}
