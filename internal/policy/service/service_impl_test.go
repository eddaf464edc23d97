package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/gatehouse/internal/entitlement/domain"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/permission/gate"
	"github.com/smallbiznis/gatehouse/internal/policy/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	snapshotdomain "github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	subscriptiondomain "github.com/smallbiznis/gatehouse/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMemberships struct {
	active bool
	calls  int
}

func (m *stubMemberships) ActiveRoleID(context.Context, scope.Scope, snowflake.ID) (*snowflake.ID, error) {
	if !m.active {
		return nil, nil
	}
	roleID := snowflake.ID(1)
	return &roleID, nil
}

func (m *stubMemberships) HasActiveMembership(context.Context, scope.Scope, snowflake.ID) (bool, error) {
	m.calls++
	return m.active, nil
}

func (m *stubMemberships) GrantedPermissionKeys(context.Context, snowflake.ID) ([]string, error) {
	return nil, nil
}

func (m *stubMemberships) ReplaceGrants(context.Context, membershipdomain.ReplaceGrantsRequest) error {
	return nil
}

func (m *stubMemberships) SubAccountBelongsToAgency(context.Context, snowflake.ID, snowflake.ID) (bool, error) {
	return true, nil
}

func (m *stubMemberships) AgencyOfSubAccount(context.Context, snowflake.ID) (*snowflake.ID, error) {
	return nil, nil
}

type stubSnapshots struct {
	keys  []string
	calls int
}

func (s *stubSnapshots) Get(_ context.Context, userID snowflake.ID, sc scope.Scope) (*snapshotdomain.AccessSnapshot, error) {
	s.calls++
	return &snapshotdomain.AccessSnapshot{
		UserID:         userID,
		ScopeKey:       sc.Key(),
		PermissionKeys: append([]string(nil), s.keys...),
		PermissionHash: snapshotdomain.Hash(s.keys),
		Version:        1,
		Active:         true,
	}, nil
}

func (s *stubSnapshots) Invalidate(context.Context, snowflake.ID, string) error { return nil }

func (s *stubSnapshots) InvalidateByRoleID(context.Context, snowflake.ID) error { return nil }

type stubEntitlements struct {
	effective map[string]entitlementdomain.Effective
	calls     int
}

func (e *stubEntitlements) Resolve(context.Context, entitlementdomain.ResolveRequest) (map[string]entitlementdomain.Effective, error) {
	e.calls++
	return e.effective, nil
}

func (e *stubEntitlements) PutOverride(context.Context, entitlementdomain.PutOverrideRequest) (*entitlementdomain.Override, error) {
	return nil, nil
}

func (e *stubEntitlements) DeleteOverride(context.Context, string) error { return nil }

type stubSubscriptions struct {
	state subscriptiondomain.State
}

func (s *stubSubscriptions) ActivePlanIDs(context.Context, snowflake.ID) ([]string, error) {
	return nil, nil
}

func (s *stubSubscriptions) State(context.Context, snowflake.ID) (subscriptiondomain.State, error) {
	return s.state, nil
}

type stubUsage struct {
	verdict domain.UsageDecision
	lastReq domain.UsageCheckRequest
	calls   int
}

func (u *stubUsage) Check(_ context.Context, req domain.UsageCheckRequest) (domain.UsageDecision, error) {
	u.calls++
	u.lastReq = req
	return u.verdict, nil
}

type fixture struct {
	memberships   *stubMemberships
	snapshots     *stubSnapshots
	entitlements  *stubEntitlements
	subscriptions *stubSubscriptions
	usage         *stubUsage
	svc           domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table, err := gate.NewDefaultTable()
	require.NoError(t, err)

	f := &fixture{
		memberships:   &stubMemberships{active: true},
		snapshots:     &stubSnapshots{keys: []string{"agency.settings.view"}},
		entitlements:  &stubEntitlements{effective: map[string]entitlementdomain.Effective{}},
		subscriptions: &stubSubscriptions{state: subscriptiondomain.StateActive},
		usage:         &stubUsage{verdict: domain.UsageDecision{Allowed: true}},
	}
	f.svc = New(Params{
		Log:           zap.NewNop(),
		Memberships:   f.memberships,
		Snapshots:     f.snapshots,
		Entitlements:  f.entitlements,
		Subscriptions: f.subscriptions,
		Gates:         table,
		Usage:         f.usage,
	})
	return f
}

func boolPtr(v bool) *bool { return &v }

func entitled(keys ...string) map[string]entitlementdomain.Effective {
	out := make(map[string]entitlementdomain.Effective, len(keys))
	for _, key := range keys {
		out[key] = entitlementdomain.Effective{
			FeatureKey: key,
			Feature:    entitlementdomain.Feature{Key: key, ValueType: entitlementdomain.ValueTypeBoolean},
			IsEnabled:  true,
		}
	}
	return out
}

func TestCanPerform_NoMembershipShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.memberships.active = false

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:                  scope.Agency(7),
		UserID:                 100,
		RequiredPermissionKeys: []string{"agency.settings.view"},
		FeatureKey:             "crm.customers.contact",
	})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonNoMembership, decision.Reason)
	assert.Equal(t, domain.SuggestionNone, decision.Suggestion)

	// Later stages never ran.
	assert.Equal(t, 0, f.snapshots.calls)
	assert.Equal(t, 0, f.entitlements.calls)
	assert.Equal(t, 0, f.usage.calls)
}

func TestCanPerform_MissingPermissionStopsBeforeSubscription(t *testing.T) {
	f := newFixture(t)
	f.subscriptions.state = subscriptiondomain.StateNone

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:                  scope.Agency(7),
		UserID:                 100,
		RequiredPermissionKeys: []string{"agency.settings.manage"},
		FeatureKey:             "crm.customers.contact",
	})
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonNoPermission, decision.Reason)
	assert.Contains(t, decision.Message, "agency.settings.manage")
	assert.Equal(t, subscriptiondomain.StateNone, decision.SubscriptionState)
	assert.Equal(t, 0, f.usage.calls)
}

func TestCanPerform_FreeKeysSkipEntitlementResolution(t *testing.T) {
	f := newFixture(t)
	f.snapshots.keys = []string{"agency.settings.view", "agency.settings.manage"}

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:                  scope.Agency(7),
		UserID:                 100,
		RequiredPermissionKeys: []string{"agency.settings.view", "agency.settings.manage"},
	})
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, f.entitlements.calls)
}

func TestCanPerform_PaidKeyDeniedWithoutEntitlement(t *testing.T) {
	f := newFixture(t)
	f.snapshots.keys = []string{"crm.customers.contact.read"}

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:                  scope.Agency(7),
		UserID:                 100,
		RequiredPermissionKeys: []string{"crm.customers.contact.read"},
	})
	require.NoError(t, err)

	// The grant is held but the plan no longer backs it.
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.ReasonNoPermission, decision.Reason)
	assert.Equal(t, 1, f.entitlements.calls)
}

func TestCanPerform_PaidKeyAllowedWithEntitlement(t *testing.T) {
	f := newFixture(t)
	f.snapshots.keys = []string{"crm.customers.contact.read"}
	f.entitlements.effective = entitled("crm.customers.contact")

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:                  scope.Agency(7),
		UserID:                 100,
		RequiredPermissionKeys: []string{"crm.customers.contact.read"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCanPerform_EntitlementsResolvedOncePerDecision(t *testing.T) {
	f := newFixture(t)
	f.snapshots.keys = []string{"crm.customers.contact.read", "crm.customers.contact.update"}
	f.entitlements.effective = entitled("crm.customers.contact")

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:  scope.Agency(7),
		UserID: 100,
		RequiredPermissionKeys: []string{
			"crm.customers.contact.read",
			"crm.customers.contact.update",
		},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, f.entitlements.calls)
}

func TestCanPerform_SubscriptionStageSuggestions(t *testing.T) {
	f := newFixture(t)
	f.subscriptions.state = subscriptiondomain.StateNone

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:  scope.Agency(7),
		UserID: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoSubscription, decision.Reason)
	assert.Equal(t, domain.SuggestionContactAdmin, decision.Suggestion)
	assert.Equal(t, 0, f.usage.calls)

	// With billing access the caller can act on the upsell themselves.
	f.snapshots.keys = []string{domain.BillingManagePermission}
	decision, err = f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:  scope.Agency(7),
		UserID: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SuggestionUpgrade, decision.Suggestion)
	assert.True(t, decision.HasBillingAccess)
}

func TestCanPerform_SubscriptionCheckOptOut(t *testing.T) {
	f := newFixture(t)
	f.subscriptions.state = subscriptiondomain.StateNone

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:                     scope.Agency(7),
		UserID:                    100,
		RequireActiveSubscription: boolPtr(false),
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, subscriptiondomain.StateNone, decision.SubscriptionState)
}

func TestCanPerform_TrialCountsAsActive(t *testing.T) {
	f := newFixture(t)
	f.subscriptions.state = subscriptiondomain.StateTrial

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:  scope.Agency(7),
		UserID: 100,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCanPerform_UsageStageDefaultsQuantityToOne(t *testing.T) {
	f := newFixture(t)

	decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
		Scope:      scope.Agency(7),
		UserID:     100,
		FeatureKey: "crm.customers.contact",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.Usage)
	assert.Equal(t, int64(1), f.usage.lastReq.Quantity)
}

func TestCanPerform_UsageDenialMapping(t *testing.T) {
	cases := []struct {
		name           string
		verdict        domain.Reason
		billing        bool
		wantReason     domain.Reason
		wantSuggestion domain.Suggestion
	}{
		{"feature disabled without billing", domain.ReasonFeatureDisabled, false, domain.ReasonFeatureDisabled, domain.SuggestionContactAdmin},
		{"feature disabled with billing", domain.ReasonFeatureDisabled, true, domain.ReasonFeatureDisabled, domain.SuggestionUpgrade},
		{"insufficient credits without billing", domain.ReasonInsufficientCredits, false, domain.ReasonInsufficientCredits, domain.SuggestionContactAdmin},
		{"insufficient credits with billing", domain.ReasonInsufficientCredits, true, domain.ReasonInsufficientCredits, domain.SuggestionTopUp},
		{"limit exceeded with billing", domain.ReasonLimitExceeded, true, domain.ReasonLimitExceeded, domain.SuggestionUpgrade},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.usage.verdict = domain.UsageDecision{Allowed: false, Reason: tc.verdict, Message: "denied"}
			if tc.billing {
				f.snapshots.keys = []string{domain.BillingManagePermission}
			}

			decision, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{
				Scope:      scope.Agency(7),
				UserID:     100,
				FeatureKey: "crm.customers.contact",
				Quantity:   3,
			})
			require.NoError(t, err)

			assert.False(t, decision.Allowed)
			assert.Equal(t, tc.wantReason, decision.Reason)
			assert.Equal(t, tc.wantSuggestion, decision.Suggestion)
			require.NotNil(t, decision.Usage)
			assert.Equal(t, int64(3), f.usage.lastReq.Quantity)
		})
	}
}

func TestCanPerform_InvalidScopeRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CanPerform(context.Background(), domain.CanPerformRequest{UserID: 100})
	assert.Error(t, err)
	assert.Equal(t, 0, f.memberships.calls)
}
