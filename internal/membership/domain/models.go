// Package domain contains persistence models for agencies, subaccounts,
// role definitions and membership rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Agency is the top-level tenant.
type Agency struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null"`
	Slug string       `gorm:"type:text;not null;uniqueIndex"`

	// InheritEntitlementOverrides controls whether subaccounts under this
	// agency inherit agency-scoped entitlement overrides by default.
	InheritEntitlementOverrides *bool `gorm:"column:inherit_entitlement_overrides"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Agency) TableName() string { return "agencies" }

// SubAccount is a child tenant nested under an agency.
type SubAccount struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	AgencyID snowflake.ID `gorm:"column:agency_id;not null;index"`
	Name     string       `gorm:"type:text;not null"`
	Slug     string       `gorm:"type:text;not null;index:ux_subaccounts_agency_slug,unique,priority:2"`

	InheritEntitlementOverrides *bool `gorm:"column:inherit_entitlement_overrides"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SubAccount) TableName() string { return "subaccounts" }

// RoleScope tells whether a role binds agency or subaccount memberships.
type RoleScope string

const (
	RoleScopeAgency     RoleScope = "AGENCY"
	RoleScopeSubAccount RoleScope = "SUBACCOUNT"
)

// Role is a named bundle of permission grants.
type Role struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	AgencyID snowflake.ID `gorm:"column:agency_id;not null;index"`
	Name     string       `gorm:"type:text;not null"`
	Scope    RoleScope    `gorm:"column:role_scope;type:text;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Role) TableName() string { return "roles" }

// RolePermission is a single grant row. Revocations keep the row with
// granted=false so grant history survives.
type RolePermission struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	RoleID        snowflake.ID `gorm:"column:role_id;not null;index:ux_role_permissions_role_key,priority:1"`
	PermissionKey string       `gorm:"column:permission_key;type:text;not null;index:ux_role_permissions_role_key,priority:2"`
	Granted       bool         `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// AgencyMembership ties a user to an agency with at most one active role.
type AgencyMembership struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	AgencyID snowflake.ID `gorm:"column:agency_id;not null;index:ux_agency_memberships,priority:1"`
	UserID   snowflake.ID `gorm:"column:user_id;not null;index:ux_agency_memberships,priority:2"`
	RoleID   snowflake.ID `gorm:"column:role_id;not null;index"`

	// No gorm default on is_active: a default tag makes gorm drop the
	// column on insert when the value is false, silently activating a
	// deactivated membership. The SQL migration still defaults to true.
	IsActive bool `gorm:"column:is_active;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AgencyMembership) TableName() string { return "agency_memberships" }

// SubAccountMembership ties a user to a subaccount with at most one active role.
type SubAccountMembership struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	SubAccountID snowflake.ID `gorm:"column:subaccount_id;not null;index:ux_subaccount_memberships,priority:1"`
	UserID       snowflake.ID `gorm:"column:user_id;not null;index:ux_subaccount_memberships,priority:2"`
	RoleID       snowflake.ID `gorm:"column:role_id;not null;index"`

	// Same rule as AgencyMembership: no gorm default on is_active.
	IsActive bool `gorm:"column:is_active;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SubAccountMembership) TableName() string { return "subaccount_memberships" }
