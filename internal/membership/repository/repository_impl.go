package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/membership/domain"
	"gorm.io/gorm"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &repo{genID: genID}
}

func (r *repo) FindAgency(ctx context.Context, db *gorm.DB, agencyID snowflake.ID) (*domain.Agency, error) {
	var a domain.Agency
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, inherit_entitlement_overrides, metadata, created_at, updated_at
		 FROM agencies WHERE id = ?`,
		agencyID,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) FindSubAccount(ctx context.Context, db *gorm.DB, subAccountID snowflake.ID) (*domain.SubAccount, error) {
	var s domain.SubAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, agency_id, name, slug, inherit_entitlement_overrides, metadata, created_at, updated_at
		 FROM subaccounts WHERE id = ?`,
		subAccountID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) FindActiveAgencyMembership(ctx context.Context, db *gorm.DB, agencyID, userID snowflake.ID) (*domain.AgencyMembership, error) {
	var m domain.AgencyMembership
	err := db.WithContext(ctx).Raw(
		`SELECT id, agency_id, user_id, role_id, is_active, created_at, updated_at
		 FROM agency_memberships
		 WHERE agency_id = ? AND user_id = ? AND is_active = true
		 LIMIT 1`,
		agencyID,
		userID,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) FindActiveSubAccountMembership(ctx context.Context, db *gorm.DB, subAccountID, userID snowflake.ID) (*domain.SubAccountMembership, error) {
	var m domain.SubAccountMembership
	err := db.WithContext(ctx).Raw(
		`SELECT id, subaccount_id, user_id, role_id, is_active, created_at, updated_at
		 FROM subaccount_memberships
		 WHERE subaccount_id = ? AND user_id = ? AND is_active = true
		 LIMIT 1`,
		subAccountID,
		userID,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) FindRole(ctx context.Context, db *gorm.DB, roleID snowflake.ID) (*domain.Role, error) {
	var role domain.Role
	err := db.WithContext(ctx).Raw(
		`SELECT id, agency_id, name, role_scope, created_at, updated_at
		 FROM roles WHERE id = ?`,
		roleID,
	).Scan(&role).Error
	if err != nil {
		return nil, err
	}
	if role.ID == 0 {
		return nil, nil
	}
	return &role, nil
}

func (r *repo) GrantedPermissionKeys(ctx context.Context, db *gorm.DB, roleID snowflake.ID) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT permission_key
		 FROM role_permissions
		 WHERE role_id = ? AND granted = true
		 ORDER BY permission_key`,
		roleID,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) ReplaceGrants(ctx context.Context, db *gorm.DB, roleID snowflake.ID, keys []string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`UPDATE role_permissions SET granted = false, updated_at = ? WHERE role_id = ?`,
			now,
			roleID,
		).Error; err != nil {
			return err
		}
		for _, key := range keys {
			res := tx.Exec(
				`UPDATE role_permissions SET granted = true, updated_at = ?
				 WHERE role_id = ? AND permission_key = ?`,
				now,
				roleID,
				key,
			)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				continue
			}
			if err := tx.Exec(
				`INSERT INTO role_permissions (id, role_id, permission_key, granted, created_at, updated_at)
				 VALUES (?, ?, ?, true, ?, ?)`,
				r.genID.Generate(),
				roleID,
				key,
				now,
				now,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
