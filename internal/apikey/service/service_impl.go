package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/apikey/domain"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/principal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secretPrefix = "ghk_"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.APIKey, string, error) {
	if req.AgencyID == 0 && req.Kind != principal.KindUserKey {
		return nil, "", domain.ErrInvalidRequest
	}
	switch req.Kind {
	case principal.KindAgencyKey:
	case principal.KindSubAccountKey:
		if req.SubAccountID == nil {
			return nil, "", domain.ErrInvalidRequest
		}
	case principal.KindUserKey:
		if req.UserID == nil {
			return nil, "", domain.ErrInvalidRequest
		}
	default:
		return nil, "", domain.ErrInvalidRequest
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	secret := secretPrefix + hex.EncodeToString(raw)

	now := s.clock.Now()
	key := &domain.APIKey{
		ID:           s.genID.Generate(),
		Kind:         req.Kind,
		Name:         strings.TrimSpace(req.Name),
		Prefix:       secret[:len(secretPrefix)+8],
		KeyHash:      hashSecret(secret),
		AgencyID:     req.AgencyID,
		SubAccountID: req.SubAccountID,
		UserID:       req.UserID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, id := range req.AllowedSubAccountIDs {
		key.AllowedSubAccountIDs = append(key.AllowedSubAccountIDs, id.String())
	}

	if err := s.repo.Create(ctx, s.db, key); err != nil {
		return nil, "", err
	}
	return key, secret, nil
}

func (s *Service) Resolve(ctx context.Context, secret string) (principal.Principal, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, secretPrefix) {
		return principal.Principal{}, domain.ErrInvalidKey
	}

	key, err := s.repo.FindByHash(ctx, s.db, hashSecret(secret))
	if err != nil {
		return principal.Principal{}, err
	}
	if key == nil || !key.IsActive {
		return principal.Principal{}, domain.ErrInvalidKey
	}

	// Best effort; a failed touch never blocks authentication.
	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, s.clock.Now()); err != nil {
		s.log.Warn("touch api key", zap.String("id", key.ID.String()), zap.Error(err))
	}

	switch key.Kind {
	case principal.KindAgencyKey:
		allowed := make([]snowflake.ID, 0, len(key.AllowedSubAccountIDs))
		for _, raw := range key.AllowedSubAccountIDs {
			id, err := snowflake.ParseString(raw)
			if err != nil {
				return principal.Principal{}, fmt.Errorf("corrupt allow-list on key %s: %w", key.ID, err)
			}
			allowed = append(allowed, id)
		}
		return principal.AgencyKey(key.AgencyID, allowed), nil
	case principal.KindSubAccountKey:
		if key.SubAccountID == nil {
			return principal.Principal{}, domain.ErrInvalidKey
		}
		return principal.SubAccountKey(*key.SubAccountID), nil
	case principal.KindUserKey:
		if key.UserID == nil {
			return principal.Principal{}, domain.ErrInvalidKey
		}
		return principal.UserKey(*key.UserID), nil
	default:
		return principal.Principal{}, domain.ErrInvalidKey
	}
}

func (s *Service) Revoke(ctx context.Context, id snowflake.ID) error {
	return s.repo.Revoke(ctx, s.db, id)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
