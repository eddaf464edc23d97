package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/permission"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("membership.service"),
		repo: p.Repo,
	}
}

func (s *Service) ActiveRoleID(ctx context.Context, sc scope.Scope, userID snowflake.ID) (*snowflake.ID, error) {
	if err := sc.Validate(); err != nil {
		return nil, domain.ErrInvalidScope
	}

	if sc.Level() == scope.LevelSubAccount {
		m, err := s.repo.FindActiveSubAccountMembership(ctx, s.db, sc.SubAccountID, userID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, nil
		}
		roleID := m.RoleID
		return &roleID, nil
	}

	m, err := s.repo.FindActiveAgencyMembership(ctx, s.db, sc.AgencyID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	roleID := m.RoleID
	return &roleID, nil
}

func (s *Service) HasActiveMembership(ctx context.Context, sc scope.Scope, userID snowflake.ID) (bool, error) {
	roleID, err := s.ActiveRoleID(ctx, sc, userID)
	if err != nil {
		return false, err
	}
	return roleID != nil, nil
}

func (s *Service) GrantedPermissionKeys(ctx context.Context, roleID snowflake.ID) ([]string, error) {
	keys, err := s.repo.GrantedPermissionKeys(ctx, s.db, roleID)
	if err != nil {
		return nil, err
	}
	return dedupeSorted(keys), nil
}

func (s *Service) ReplaceGrants(ctx context.Context, req domain.ReplaceGrantsRequest) error {
	roleID, err := snowflake.ParseString(strings.TrimSpace(req.RoleID))
	if err != nil || roleID == 0 {
		return domain.ErrInvalidRoleID
	}

	role, err := s.repo.FindRole(ctx, s.db, roleID)
	if err != nil {
		return err
	}
	if role == nil {
		return domain.ErrRoleNotFound
	}

	keys := make([]string, 0, len(req.PermissionKeys))
	for _, raw := range req.PermissionKeys {
		key, err := permission.ParseKey(raw)
		if err != nil {
			return domain.ErrInvalidPermissionKey
		}
		keys = append(keys, string(key))
	}

	return s.repo.ReplaceGrants(ctx, s.db, roleID, dedupeSorted(keys))
}

func (s *Service) SubAccountBelongsToAgency(ctx context.Context, agencyID, subAccountID snowflake.ID) (bool, error) {
	sub, err := s.repo.FindSubAccount(ctx, s.db, subAccountID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	return sub.AgencyID == agencyID, nil
}

func (s *Service) AgencyOfSubAccount(ctx context.Context, subAccountID snowflake.ID) (*snowflake.ID, error) {
	sub, err := s.repo.FindSubAccount(ctx, s.db, subAccountID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	agencyID := sub.AgencyID
	return &agencyID, nil
}

func dedupeSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
