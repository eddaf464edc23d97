package gate

import (
	"fmt"
	"sort"
	"strings"

	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
)

// Rule maps a permission-key prefix to the entitlements a tenant must hold
// before a permission under that prefix may be assigned or exercised. At
// least one requirement kind must be set.
type Rule struct {
	Prefix string

	// RequireAny is satisfied when at least one listed feature key is
	// entitlement-satisfied.
	RequireAny []string

	// RequireAll is satisfied when every listed feature key is
	// entitlement-satisfied.
	RequireAll []string

	// RequireAnyAll is satisfied when at least one inner group has all of
	// its members entitlement-satisfied, i.e. (A AND B) OR (C AND D).
	RequireAnyAll [][]string
}

func (r Rule) hasRequirement() bool {
	return len(r.RequireAny) > 0 || len(r.RequireAll) > 0 || len(r.RequireAnyAll) > 0
}

// Table is the validated, immutable set of gate rules for the process. Rules
// are ordered longest-prefix-first so the most specific rule wins.
type Table struct {
	rules        []Rule
	paidPrefixes []string
}

// NewTable validates and indexes a rule set. A duplicate prefix or a rule
// with no requirement kind is a startup error, never a runtime fallback.
func NewTable(rules []Rule, paidPrefixes []string) (*Table, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.Prefix == "" {
			return nil, fmt.Errorf("gate: rule with empty prefix")
		}
		if _, dup := seen[r.Prefix]; dup {
			return nil, fmt.Errorf("gate: duplicate prefix %q", r.Prefix)
		}
		if !r.hasRequirement() {
			return nil, fmt.Errorf("gate: rule %q has no requirement", r.Prefix)
		}
		seen[r.Prefix] = struct{}{}
	}

	sorted := append([]Rule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Table{rules: sorted, paidPrefixes: append([]string(nil), paidPrefixes...)}, nil
}

// ForKey returns the rule with the longest prefix matching the permission
// key, or nil when no rule applies.
func (t *Table) ForKey(key string) *Rule {
	for i := range t.rules {
		if strings.HasPrefix(key, t.rules[i].Prefix) {
			return &t.rules[i]
		}
	}
	return nil
}

// Satisfied reports whether the entitlement map meets the rule's
// requirements.
func (t *Table) Satisfied(rule Rule, entitlements map[string]entitlementdomain.Effective) bool {
	satisfied := func(featureKey string) bool {
		eff, ok := entitlements[featureKey]
		return ok && eff.Satisfied()
	}

	if len(rule.RequireAll) > 0 {
		for _, key := range rule.RequireAll {
			if !satisfied(key) {
				return false
			}
		}
		return true
	}

	if len(rule.RequireAnyAll) > 0 {
		for _, group := range rule.RequireAnyAll {
			if len(group) == 0 {
				continue
			}
			all := true
			for _, key := range group {
				if !satisfied(key) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
		return false
	}

	for _, key := range rule.RequireAny {
		if satisfied(key) {
			return true
		}
	}
	return false
}

// IsPermissionAssignable decides whether a permission key may be granted to a
// role given the tenant's effective entitlements. An unmapped key under a
// paid namespace denies; unmapped free/core keys are assignable without an
// entitlement check.
func (t *Table) IsPermissionAssignable(key string, entitlements map[string]entitlementdomain.Effective) bool {
	rule := t.ForKey(key)
	if rule == nil {
		return !t.isPaidNamespace(key)
	}
	return t.Satisfied(*rule, entitlements)
}

func (t *Table) isPaidNamespace(key string) bool {
	for _, prefix := range t.paidPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// PaidPrefixes returns the reserved paid-namespace prefixes.
func (t *Table) PaidPrefixes() []string {
	return append([]string(nil), t.paidPrefixes...)
}
