package gate

import "go.uber.org/fx"

// The two reserved paid-module namespaces. Any permission key under these
// prefixes that has no explicit gate rule is denied outright.
var paidPrefixes = []string{"fi.", "crm."}

// defaultRules is the process-wide gate configuration. Rules are keyed on
// permission-key prefixes; feature keys reference the entitlement catalog.
var defaultRules = []Rule{
	{
		Prefix:     "fi.accounts.",
		RequireAll: []string{"fi.core"},
	},
	{
		Prefix:     "fi.invoices.",
		RequireAll: []string{"fi.core", "fi.invoicing"},
	},
	{
		Prefix:     "fi.payouts.",
		RequireAnyAll: [][]string{
			{"fi.core", "fi.payouts"},
			{"fi.core", "fi.payouts_lite"},
		},
	},
	{
		Prefix:     "fi.reports.",
		RequireAny: []string{"fi.reporting", "fi.reporting_plus"},
	},
	{
		Prefix:     "crm.customers.contact",
		RequireAll: []string{"crm.customers.contact"},
	},
	{
		Prefix:     "crm.customers.",
		RequireAll: []string{"crm.core"},
	},
	{
		Prefix:     "crm.pipelines.",
		RequireAll: []string{"crm.core", "crm.pipelines"},
	},
	{
		Prefix:     "crm.campaigns.",
		RequireAnyAll: [][]string{
			{"crm.core", "crm.campaigns.email"},
			{"crm.core", "crm.campaigns.sms"},
		},
	},
}

// NewDefaultTable builds and validates the built-in gate table. A
// misconfigured rule fails application startup.
func NewDefaultTable() (*Table, error) {
	return NewTable(defaultRules, paidPrefixes)
}

var Module = fx.Module("permission.gate",
	fx.Provide(NewDefaultTable),
)
