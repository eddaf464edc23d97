// Package scope defines the tenant scope value used as the sole cache and
// storage key for access snapshots and entitlement lookups.
package scope

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type Level string

const (
	LevelAgency     Level = "AGENCY"
	LevelSubAccount Level = "SUBACCOUNT"
)

var (
	ErrInvalidScope = errors.New("invalid_scope")
)

// Scope identifies either an agency or a subaccount nested under one.
// A subaccount scope always carries its owning agency id; ownership is
// validated by the tenant-context resolver before a Scope is constructed.
type Scope struct {
	AgencyID     snowflake.ID
	SubAccountID snowflake.ID
}

// Agency returns an agency-level scope.
func Agency(agencyID snowflake.ID) Scope {
	return Scope{AgencyID: agencyID}
}

// SubAccount returns a subaccount-level scope under the given agency.
func SubAccount(agencyID, subAccountID snowflake.ID) Scope {
	return Scope{AgencyID: agencyID, SubAccountID: subAccountID}
}

func (s Scope) Level() Level {
	if s.SubAccountID != 0 {
		return LevelSubAccount
	}
	return LevelAgency
}

func (s Scope) IsZero() bool {
	return s.AgencyID == 0 && s.SubAccountID == 0
}

func (s Scope) Validate() error {
	if s.AgencyID == 0 {
		return ErrInvalidScope
	}
	return nil
}

// Key returns the canonical cache/storage key for the scope. Agency- and
// subaccount-scoped snapshots never collide because the prefixes differ.
func (s Scope) Key() string {
	if s.SubAccountID != 0 {
		return SubAccountKey(s.SubAccountID)
	}
	return AgencyKey(s.AgencyID)
}

// AgencyKey maps an agency id to its canonical scope key.
func AgencyKey(agencyID snowflake.ID) string {
	return fmt.Sprintf("agency:%s", agencyID.String())
}

// SubAccountKey maps a subaccount id to its canonical scope key.
func SubAccountKey(subAccountID snowflake.ID) string {
	return fmt.Sprintf("subaccount:%s", subAccountID.String())
}
