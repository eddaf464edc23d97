package permission

// catalog is the built-in permission catalog grouped by product area. Keys
// follow module.resource.action (or module.submodule.resource.action for the
// paid namespaces); the bundle builder derives its groups from these same
// segments.
var catalog = map[string][]string{
	"Agency": {
		"agency.settings.view",
		"agency.settings.manage",
		"agency.billing.view",
		"agency.billing.manage",
		"agency.members.view",
		"agency.members.invite",
		"agency.members.remove",
		"agency.roles.view",
		"agency.roles.manage",
	},
	"SubAccount": {
		"subaccount.settings.view",
		"subaccount.settings.manage",
		"subaccount.members.view",
		"subaccount.members.invite",
		"subaccount.members.remove",
	},
	"CRM": {
		"crm.customers.contact.view",
		"crm.customers.contact.read",
		"crm.customers.contact.create",
		"crm.customers.contact.update",
		"crm.customers.contact.delete",
		"crm.customers.segment.view",
		"crm.customers.segment.create",
		"crm.pipelines.pipeline.view",
		"crm.pipelines.pipeline.create",
		"crm.pipelines.pipeline.update",
		"crm.pipelines.pipeline.manage",
		"crm.campaigns.campaign.view",
		"crm.campaigns.campaign.create",
		"crm.campaigns.campaign.run",
	},
	"Finance": {
		"fi.accounts.account.view",
		"fi.accounts.account.create",
		"fi.accounts.account.close",
		"fi.invoices.invoice.view",
		"fi.invoices.invoice.read",
		"fi.invoices.invoice.create",
		"fi.invoices.invoice.update",
		"fi.payouts.payout.view",
		"fi.payouts.payout.create",
		"fi.reports.report.view",
		"fi.reports.report.run",
	},
}

// CatalogByCategory returns the permission catalog keyed by category name.
// The returned map is a copy; callers may not mutate the catalog.
func CatalogByCategory() map[string][]Key {
	out := make(map[string][]Key, len(catalog))
	for category, keys := range catalog {
		parsed := make([]Key, 0, len(keys))
		for _, raw := range keys {
			parsed = append(parsed, Key(raw))
		}
		out[category] = parsed
	}
	return out
}
