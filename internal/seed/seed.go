// Package seed bootstraps a fresh database for local and self-hosted runs:
// schema auto-migration for non-postgres databases and an optional demo
// agency with roles, plans and a feature catalog.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	apikeydomain "github.com/smallbiznis/gatehouse/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/gatehouse/internal/audit/domain"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	featureflagdomain "github.com/smallbiznis/gatehouse/internal/featureflag/domain"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	snapshotdomain "github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	subscriptiondomain "github.com/smallbiznis/gatehouse/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/gatehouse/internal/usage/domain"
	"gorm.io/gorm"
)

const (
	demoAgencyName     = "Acme Collective"
	demoSubAccountName = "Acme North"
	demoPlanID         = "price_pro_monthly"
	demoUserID         = snowflake.ID(1)
)

// AutoMigrate creates the schema via gorm for databases the embedded SQL
// migrations do not target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	return db.AutoMigrate(
		&membershipdomain.Agency{},
		&membershipdomain.SubAccount{},
		&membershipdomain.Role{},
		&membershipdomain.RolePermission{},
		&membershipdomain.AgencyMembership{},
		&membershipdomain.SubAccountMembership{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.AddOn{},
		&entitlementdomain.Feature{},
		&entitlementdomain.PlanFeature{},
		&entitlementdomain.Override{},
		&snapshotdomain.AccessSnapshot{},
		&featureflagdomain.UserFeaturePreference{},
		&usagedomain.UsageRecord{},
		&usagedomain.CreditLedgerEntry{},
		&apikeydomain.APIKey{},
		&auditdomain.Entry{},
	)
}

// EnsureDemoAgency provisions a demo tenant so the API is explorable out of
// the box. Idempotent: it keys on the agency slug.
func EnsureDemoAgency(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agency, created, err := ensureAgencyTx(ctx, tx, node)
		if err != nil || !created {
			return err
		}
		sub, err := ensureSubAccountTx(ctx, tx, node, agency.ID)
		if err != nil {
			return err
		}
		if err := ensureRolesTx(ctx, tx, node, agency.ID, sub.ID); err != nil {
			return err
		}
		if err := ensureCatalogTx(ctx, tx, node); err != nil {
			return err
		}
		return ensureSubscriptionTx(ctx, tx, node, agency.ID)
	})
}

func ensureAgencyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*membershipdomain.Agency, bool, error) {
	agencySlug := slug.Make(demoAgencyName)

	var agency membershipdomain.Agency
	err := tx.WithContext(ctx).Where("slug = ?", agencySlug).First(&agency).Error
	if err == nil {
		return &agency, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	agency = membershipdomain.Agency{
		ID:        node.Generate(),
		Name:      demoAgencyName,
		Slug:      agencySlug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&agency).Error; err != nil {
		return nil, false, err
	}
	return &agency, true, nil
}

func ensureSubAccountTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, agencyID snowflake.ID) (*membershipdomain.SubAccount, error) {
	now := time.Now().UTC()
	sub := membershipdomain.SubAccount{
		ID:        node.Generate(),
		AgencyID:  agencyID,
		Name:      demoSubAccountName,
		Slug:      slug.Make(demoSubAccountName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func ensureRolesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, agencyID, subAccountID snowflake.ID) error {
	now := time.Now().UTC()

	ownerRole := membershipdomain.Role{
		ID:        node.Generate(),
		AgencyID:  agencyID,
		Name:      "owner",
		Scope:     membershipdomain.RoleScopeAgency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&ownerRole).Error; err != nil {
		return err
	}

	memberRole := membershipdomain.Role{
		ID:        node.Generate(),
		AgencyID:  agencyID,
		Name:      "member",
		Scope:     membershipdomain.RoleScopeSubAccount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&memberRole).Error; err != nil {
		return err
	}

	ownerGrants := []string{
		"agency.billing.manage",
		"agency.settings.manage",
		"crm.customers.contact.read",
		"crm.customers.contact.update",
		"fi.invoices.invoice.read",
		"fi.invoices.invoice.create",
	}
	for _, key := range ownerGrants {
		grant := membershipdomain.RolePermission{
			ID:            node.Generate(),
			RoleID:        ownerRole.ID,
			PermissionKey: key,
			Granted:       true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.WithContext(ctx).Create(&grant).Error; err != nil {
			return err
		}
	}

	memberGrants := []string{
		"crm.customers.contact.read",
	}
	for _, key := range memberGrants {
		grant := membershipdomain.RolePermission{
			ID:            node.Generate(),
			RoleID:        memberRole.ID,
			PermissionKey: key,
			Granted:       true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.WithContext(ctx).Create(&grant).Error; err != nil {
			return err
		}
	}

	agencyMembership := membershipdomain.AgencyMembership{
		ID:        node.Generate(),
		AgencyID:  agencyID,
		UserID:    demoUserID,
		RoleID:    ownerRole.ID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&agencyMembership).Error; err != nil {
		return err
	}

	subMembership := membershipdomain.SubAccountMembership{
		ID:           node.Generate(),
		SubAccountID: subAccountID,
		UserID:       demoUserID,
		RoleID:       memberRole.ID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return tx.WithContext(ctx).Create(&subMembership).Error
}

func ensureCatalogTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	now := time.Now().UTC()

	features := []entitlementdomain.Feature{
		{
			ID:             node.Generate(),
			Key:            "crm.core",
			Name:           "CRM Core",
			ValueType:      entitlementdomain.ValueTypeBoolean,
			Scope:          entitlementdomain.FeatureScopeAgency,
			DefaultEnabled: true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             node.Generate(),
			Key:            "crm.customers.contact",
			Name:           "CRM Contacts",
			ValueType:      entitlementdomain.ValueTypeInteger,
			Scope:          entitlementdomain.FeatureScopeAgency,
			DefaultEnabled: true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             node.Generate(),
			Key:            "fi.core",
			Name:           "Finance Core",
			ValueType:      entitlementdomain.ValueTypeBoolean,
			Scope:          entitlementdomain.FeatureScopeAgency,
			DefaultEnabled: true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		{
			ID:             node.Generate(),
			Key:            "fi.invoicing",
			Name:           "Invoicing",
			ValueType:      entitlementdomain.ValueTypeInteger,
			Scope:          entitlementdomain.FeatureScopeAgency,
			IsToggleable:   true,
			DefaultEnabled: true,
			CreditFunded:   true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	for i := range features {
		if err := tx.WithContext(ctx).Create(&features[i]).Error; err != nil {
			return err
		}
	}

	enabled := true
	hundred := int64(100)
	planRows := []entitlementdomain.PlanFeature{
		{
			ID:         node.Generate(),
			PlanID:     demoPlanID,
			FeatureKey: "crm.core",
			IsEnabled:  enabled,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:          node.Generate(),
			PlanID:      demoPlanID,
			FeatureKey:  "crm.customers.contact",
			IsEnabled:   enabled,
			IncludedInt: &hundred,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:         node.Generate(),
			PlanID:     demoPlanID,
			FeatureKey: "fi.core",
			IsEnabled:  enabled,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:          node.Generate(),
			PlanID:      demoPlanID,
			FeatureKey:  "fi.invoicing",
			IsEnabled:   enabled,
			IncludedInt: &hundred,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	for i := range planRows {
		if err := tx.WithContext(ctx).Create(&planRows[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureSubscriptionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, agencyID snowflake.ID) error {
	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	subscription := subscriptiondomain.Subscription{
		ID:                   node.Generate(),
		AgencyID:             agencyID,
		Status:               subscriptiondomain.StatusActive,
		PriceID:              demoPlanID,
		CurrentPeriodEndDate: &periodEnd,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return tx.WithContext(ctx).Create(&subscription).Error
}
