package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/cache"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/config"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Memberships membershipdomain.Service
	Clock       clock.Clock
	Broadcast   *Broadcaster `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	memberships membershipdomain.Service
	clock       clock.Clock
	broadcast   *Broadcaster

	local cache.Cache[string, *domain.AccessSnapshot]
	ttl   time.Duration
}

func New(p Params) domain.Service {
	ttl := time.Duration(p.Config.SnapshotTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	s := &Service{
		db:          p.DB,
		log:         p.Log.Named("snapshot.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		memberships: p.Memberships,
		clock:       p.Clock,
		broadcast:   p.Broadcast,
		local:       cache.NewTTLCache[string, *domain.AccessSnapshot](),
		ttl:         ttl,
	}
	if s.broadcast != nil {
		s.broadcast.OnInvalidate(s.local.Delete)
	}
	return s
}

func localKey(userID snowflake.ID, scopeKey string) string {
	return fmt.Sprintf("%d:%s", userID, scopeKey)
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID, sc scope.Scope) (*domain.AccessSnapshot, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	scopeKey := sc.Key()

	if snap, ok := s.local.Get(localKey(userID, scopeKey)); ok {
		return snap, nil
	}

	snap, err := s.repo.Find(ctx, s.db, userID, scopeKey)
	if err != nil {
		return nil, err
	}
	if snap != nil && snap.Active {
		s.local.Set(localKey(userID, scopeKey), snap, s.ttl)
		return snap, nil
	}

	rebuilt, err := s.rebuild(ctx, userID, sc, snap)
	if err != nil {
		return nil, err
	}
	if rebuilt == nil {
		return nil, nil
	}
	s.local.Set(localKey(userID, scopeKey), rebuilt, s.ttl)
	return rebuilt, nil
}

// rebuild recomputes the snapshot from live membership data and upserts it.
// Concurrent rebuilds for the same pair are harmless: both compute the same
// value and the upsert is last-writer-wins.
func (s *Service) rebuild(ctx context.Context, userID snowflake.ID, sc scope.Scope, stale *domain.AccessSnapshot) (*domain.AccessSnapshot, error) {
	roleID, err := s.memberships.ActiveRoleID(ctx, sc, userID)
	if err != nil {
		return nil, err
	}
	if roleID == nil {
		return nil, nil
	}

	keys, err := s.memberships.GrantedPermissionKeys(ctx, *roleID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	snap := &domain.AccessSnapshot{
		UserID:         userID,
		ScopeKey:       sc.Key(),
		RoleID:         *roleID,
		PermissionKeys: keys,
		PermissionHash: domain.Hash(keys),
		Version:        1,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if stale != nil {
		snap.ID = stale.ID
		snap.Version = stale.Version + 1
		snap.CreatedAt = stale.CreatedAt
	} else {
		snap.ID = s.genID.Generate()
	}

	if err := s.repo.Upsert(ctx, s.db, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Invalidate drops the local entry and deactivates the persisted row. The
// row itself stays so the rebuild continues its version lineage; a rebuild
// after invalidation always carries a higher version than the snapshot it
// replaces, even when the permission set is unchanged.
func (s *Service) Invalidate(ctx context.Context, userID snowflake.ID, scopeKey string) error {
	s.local.Delete(localKey(userID, scopeKey))
	if err := s.repo.Deactivate(ctx, s.db, userID, scopeKey, s.clock.Now()); err != nil {
		return err
	}
	if s.broadcast != nil {
		s.broadcast.Publish(ctx, localKey(userID, scopeKey))
	}
	return nil
}

func (s *Service) InvalidateByRoleID(ctx context.Context, roleID snowflake.ID) error {
	snapshots, err := s.repo.ListByRoleID(ctx, s.db, roleID)
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		if err := s.Invalidate(ctx, snap.UserID, snap.ScopeKey); err != nil {
			s.log.Error("invalidate snapshot",
				zap.String("user_id", snap.UserID.String()),
				zap.String("scope_key", snap.ScopeKey),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}
