// Package principal models the authenticated caller. Authentication itself is
// out of scope: values here are produced by the session or API-key layer and
// are trusted to be verified by the time they reach the engine.
package principal

import "github.com/bwmarrin/snowflake"

type Kind string

const (
	KindUserSession   Kind = "USER_SESSION"
	KindAgencyKey     Kind = "AGENCY_API_KEY"
	KindSubAccountKey Kind = "SUBACCOUNT_API_KEY"
	KindUserKey       Kind = "USER_API_KEY"
)

// Principal is the discriminated caller identity. Exactly the fields implied
// by Kind are set; all others are zero.
type Principal struct {
	Kind Kind

	// UserID is set for KindUserSession and KindUserKey.
	UserID snowflake.ID

	// AgencyID is set for KindAgencyKey.
	AgencyID snowflake.ID
	// AllowedSubAccountIDs optionally restricts an agency key to a subset of
	// subaccounts. Empty means every subaccount under the agency.
	AllowedSubAccountIDs []snowflake.ID

	// SubAccountID is set for KindSubAccountKey.
	SubAccountID snowflake.ID
}

func UserSession(userID snowflake.ID) Principal {
	return Principal{Kind: KindUserSession, UserID: userID}
}

func AgencyKey(agencyID snowflake.ID, allowedSubAccounts []snowflake.ID) Principal {
	return Principal{Kind: KindAgencyKey, AgencyID: agencyID, AllowedSubAccountIDs: allowedSubAccounts}
}

func SubAccountKey(subAccountID snowflake.ID) Principal {
	return Principal{Kind: KindSubAccountKey, SubAccountID: subAccountID}
}

func UserKey(ownerUserID snowflake.ID) Principal {
	return Principal{Kind: KindUserKey, UserID: ownerUserID}
}

// IsUser reports whether the principal resolves to a concrete user whose role
// memberships drive permission checks.
func (p Principal) IsUser() bool {
	return p.Kind == KindUserSession || p.Kind == KindUserKey
}

// MaySelectSubAccount reports whether an agency key may act on the given
// subaccount, honoring its optional allow-list.
func (p Principal) MaySelectSubAccount(subAccountID snowflake.ID) bool {
	if p.Kind != KindAgencyKey {
		return false
	}
	if len(p.AllowedSubAccountIDs) == 0 {
		return true
	}
	for _, id := range p.AllowedSubAccountIDs {
		if id == subAccountID {
			return true
		}
	}
	return false
}
