package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindAgency(ctx context.Context, db *gorm.DB, agencyID snowflake.ID) (*Agency, error)
	FindSubAccount(ctx context.Context, db *gorm.DB, subAccountID snowflake.ID) (*SubAccount, error)

	FindActiveAgencyMembership(ctx context.Context, db *gorm.DB, agencyID, userID snowflake.ID) (*AgencyMembership, error)
	FindActiveSubAccountMembership(ctx context.Context, db *gorm.DB, subAccountID, userID snowflake.ID) (*SubAccountMembership, error)

	FindRole(ctx context.Context, db *gorm.DB, roleID snowflake.ID) (*Role, error)
	GrantedPermissionKeys(ctx context.Context, db *gorm.DB, roleID snowflake.ID) ([]string, error)
	ReplaceGrants(ctx context.Context, db *gorm.DB, roleID snowflake.ID, keys []string) error
}
