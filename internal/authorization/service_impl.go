package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/gatehouse/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, agencyID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	agencyID = strings.TrimSpace(agencyID)
	if agencyID == "" {
		return ErrInvalidAgency
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, err := s.resolveActor(ctx, actor, agencyID)
	if err != nil {
		s.auditDenied(ctx, actorType, actor, agencyID, object, action)
		return err
	}

	domain := fmt.Sprintf("agency:%s", agencyID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actor, agencyID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, agencyID string) (string, string, string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		keyIDRaw := strings.TrimPrefix(actor, "api_key:")
		keyID, err := snowflake.ParseString(keyIDRaw)
		if err != nil || keyID == 0 {
			return "", "", "", ErrInvalidActor
		}
		// Keys act with the system role on the admin surface; tenant-level
		// restrictions are enforced by the policy engine, not here.
		return actor, "role:system", "api_key", nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", ErrInvalidActor
		}
		parsedAgencyID, err := snowflake.ParseString(agencyID)
		if err != nil || parsedAgencyID == 0 {
			return actor, "", "user", ErrInvalidAgency
		}
		role, err := s.roleForUser(ctx, parsedAgencyID, userID)
		if err != nil {
			return actor, "", "user", err
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), "user", nil
	}
	return "", "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, agencyID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Name string `gorm:"column:name"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT r.name
		 FROM agency_memberships m
		 JOIN roles r ON r.id = m.role_id
		 WHERE m.agency_id = ? AND m.user_id = ? AND m.is_active = ?
		 LIMIT 1`,
		agencyID,
		userID,
		true,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Name)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actor string, agencyID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	s.auditSvc.Record(ctx, auditdomain.Record{
		ActorType: actorType,
		ActorID:   actor,
		Action:    "authorization.denied",
		ScopeKey:  fmt.Sprintf("agency:%s", agencyID),
		Details: map[string]interface{}{
			"object": object,
			"action": action,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only)
		{"role:member", ObjectRole, ActionRoleView},
		{"role:member", ObjectGrant, ActionGrantView},
		{"role:member", ObjectOverride, ActionOverrideView},
		{"role:member", ObjectFeatureFlag, ActionFeatureFlagToggle},

		// Admin permissions
		{"role:admin", ObjectRole, ActionRoleView},
		{"role:admin", ObjectRole, ActionRoleCreate},
		{"role:admin", ObjectRole, ActionRoleUpdate},
		{"role:admin", ObjectGrant, ActionGrantView},
		{"role:admin", ObjectGrant, ActionGrantReplace},
		{"role:admin", ObjectOverride, ActionOverrideView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectFeatureFlag, ActionFeatureFlagToggle},
		{"role:admin", ObjectSnapshot, ActionSnapshotInvalidate},

		// Owner permissions
		{"role:owner", ObjectRole, ActionRoleView},
		{"role:owner", ObjectRole, ActionRoleCreate},
		{"role:owner", ObjectRole, ActionRoleUpdate},
		{"role:owner", ObjectRole, ActionRoleDelete},
		{"role:owner", ObjectGrant, ActionGrantView},
		{"role:owner", ObjectGrant, ActionGrantReplace},
		{"role:owner", ObjectOverride, ActionOverrideView},
		{"role:owner", ObjectOverride, ActionOverridePut},
		{"role:owner", ObjectOverride, ActionOverrideDelete},
		{"role:owner", ObjectAPIKey, ActionAPIKeyView},
		{"role:owner", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:owner", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
		{"role:owner", ObjectFeatureFlag, ActionFeatureFlagToggle},
		{"role:owner", ObjectSnapshot, ActionSnapshotInvalidate},
		{"role:owner", ObjectCreditLedger, ActionCreditTopUp},

		// System permissions (automated processes and API keys)
		{"role:system", ObjectRole, ActionRoleView},
		{"role:system", ObjectGrant, ActionGrantView},
		{"role:system", ObjectGrant, ActionGrantReplace},
		{"role:system", ObjectOverride, ActionOverrideView},
		{"role:system", ObjectOverride, ActionOverridePut},
		{"role:system", ObjectOverride, ActionOverrideDelete},
		{"role:system", ObjectAPIKey, ActionAPIKeyView},
		{"role:system", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:system", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
		{"role:system", ObjectSnapshot, ActionSnapshotInvalidate},
		{"role:system", ObjectCreditLedger, ActionCreditTopUp},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
