package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/config"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"github.com/smallbiznis/gatehouse/internal/snapshot/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type memRepo struct {
	rows map[string]*domain.AccessSnapshot

	findCalls       int
	upsertCalls     int
	deactivateCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]*domain.AccessSnapshot)}
}

func repoKey(userID snowflake.ID, scopeKey string) string {
	return userID.String() + "|" + scopeKey
}

func (r *memRepo) Find(_ context.Context, _ *gorm.DB, userID snowflake.ID, scopeKey string) (*domain.AccessSnapshot, error) {
	r.findCalls++
	snap, ok := r.rows[repoKey(userID, scopeKey)]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (r *memRepo) Upsert(_ context.Context, _ *gorm.DB, snapshot *domain.AccessSnapshot) error {
	r.upsertCalls++
	cp := *snapshot
	r.rows[repoKey(snapshot.UserID, snapshot.ScopeKey)] = &cp
	return nil
}

func (r *memRepo) Deactivate(_ context.Context, _ *gorm.DB, userID snowflake.ID, scopeKey string, at time.Time) error {
	r.deactivateCalls++
	if snap, ok := r.rows[repoKey(userID, scopeKey)]; ok {
		snap.Active = false
		snap.UpdatedAt = at
	}
	return nil
}

func (r *memRepo) ListByRoleID(_ context.Context, _ *gorm.DB, roleID snowflake.ID) ([]domain.AccessSnapshot, error) {
	var out []domain.AccessSnapshot
	for _, snap := range r.rows {
		if snap.RoleID == roleID {
			out = append(out, *snap)
		}
	}
	return out, nil
}

type stubMemberships struct {
	roleID *snowflake.ID
	keys   []string

	roleCalls int
	keyCalls  int
}

func (m *stubMemberships) ActiveRoleID(context.Context, scope.Scope, snowflake.ID) (*snowflake.ID, error) {
	m.roleCalls++
	return m.roleID, nil
}

func (m *stubMemberships) HasActiveMembership(ctx context.Context, sc scope.Scope, userID snowflake.ID) (bool, error) {
	roleID, err := m.ActiveRoleID(ctx, sc, userID)
	return roleID != nil, err
}

func (m *stubMemberships) GrantedPermissionKeys(context.Context, snowflake.ID) ([]string, error) {
	m.keyCalls++
	return append([]string(nil), m.keys...), nil
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

func newTestService(t *testing.T, repo *memRepo, memberships *stubMemberships) (domain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		Config:      config.Config{SnapshotTTLSeconds: 60},
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repo,
		Memberships: memberships,
		Clock:       fake,
	})
	return svc, fake
}

func TestGet_RebuildsOnFirstRead(t *testing.T) {
	repo := newMemRepo()
	roleID := snowflake.ID(42)
	memberships := &stubMemberships{
		roleID: &roleID,
		keys:   []string{"crm.customers.contact.read", "agency.billing.manage"},
	}
	svc, _ := newTestService(t, repo, memberships)

	sc := scope.Agency(7)
	snap, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, roleID, snap.RoleID)
	assert.True(t, snap.Active)
	assert.Equal(t, sc.Key(), snap.ScopeKey)
	assert.Equal(t, domain.Hash(memberships.keys), snap.PermissionHash)
	assert.Equal(t, 1, repo.upsertCalls)
}

func TestGet_SecondReadServedFromCacheWithoutVersionBump(t *testing.T) {
	repo := newMemRepo()
	roleID := snowflake.ID(42)
	memberships := &stubMemberships{roleID: &roleID, keys: []string{"crm.customers.contact.read"}}
	svc, _ := newTestService(t, repo, memberships)

	sc := scope.Agency(7)
	first, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.PermissionHash, second.PermissionHash)
	assert.Equal(t, 1, repo.upsertCalls)
	assert.Equal(t, 1, memberships.roleCalls)
}

func TestGet_NoMembershipYieldsNilNotError(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newTestService(t, repo, &stubMemberships{})

	snap, err := svc.Get(context.Background(), 100, scope.Agency(7))
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, 0, repo.upsertCalls)
}

func TestInvalidate_RebuildBumpsVersionEvenWhenKeysUnchanged(t *testing.T) {
	repo := newMemRepo()
	roleID := snowflake.ID(42)
	memberships := &stubMemberships{roleID: &roleID, keys: []string{"crm.customers.contact.read"}}
	svc, fake := newTestService(t, repo, memberships)

	sc := scope.Agency(7)
	first, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background(), 100, sc.Key()))
	assert.Equal(t, 1, repo.deactivateCalls)

	fake.Advance(time.Second)
	second, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)
	require.NotNil(t, second)

	// The grants did not change, so the rebuild is only observable through
	// the version: the lineage continues past the invalidation.
	assert.Equal(t, first.PermissionHash, second.PermissionHash)
	assert.Equal(t, first.Version+1, second.Version)
	assert.Equal(t, first.ID, second.ID)
}

func TestInvalidate_RebuildPicksUpChangedGrants(t *testing.T) {
	repo := newMemRepo()
	roleID := snowflake.ID(42)
	memberships := &stubMemberships{roleID: &roleID, keys: []string{"crm.customers.contact.read"}}
	svc, _ := newTestService(t, repo, memberships)

	sc := scope.Agency(7)
	first, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background(), 100, sc.Key()))

	memberships.keys = []string{"crm.customers.contact.read", "fi.invoices.invoice.create"}
	second, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.Version+1, second.Version)
	assert.NotEqual(t, first.PermissionHash, second.PermissionHash)
}

func TestGet_StaleRowBumpsVersionAndKeepsIdentity(t *testing.T) {
	repo := newMemRepo()
	roleID := snowflake.ID(42)
	memberships := &stubMemberships{roleID: &roleID, keys: []string{"crm.customers.contact.read"}}
	svc, fake := newTestService(t, repo, memberships)

	sc := scope.Agency(7)
	created := fake.Now()
	stale := &domain.AccessSnapshot{
		ID:             snowflake.ID(9000),
		UserID:         100,
		ScopeKey:       sc.Key(),
		RoleID:         roleID,
		PermissionKeys: []string{"old.key"},
		PermissionHash: domain.Hash([]string{"old.key"}),
		Version:        3,
		Active:         false,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, repo.Upsert(context.Background(), nil, stale))

	snap, err := svc.Get(context.Background(), 100, sc)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, stale.ID, snap.ID)
	assert.Equal(t, int64(4), snap.Version)
	assert.Equal(t, created, snap.CreatedAt)
	assert.Equal(t, domain.Hash(memberships.keys), snap.PermissionHash)
}

func TestInvalidateByRoleID_FansOutToEveryHolder(t *testing.T) {
	repo := newMemRepo()
	roleID := snowflake.ID(42)
	memberships := &stubMemberships{roleID: &roleID, keys: []string{"crm.customers.contact.read"}}
	svc, _ := newTestService(t, repo, memberships)

	agencyScope := scope.Agency(7)
	subScope := scope.SubAccount(7, 8)

	first, err := svc.Get(context.Background(), 100, agencyScope)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), 200, subScope)
	require.NoError(t, err)
	require.Len(t, repo.rows, 2)

	require.NoError(t, svc.InvalidateByRoleID(context.Background(), roleID))
	assert.Equal(t, 2, repo.deactivateCalls)
	for _, snap := range repo.rows {
		assert.False(t, snap.Active)
	}

	// Every holder rebuilds on its next read with a bumped version.
	rebuilt, err := svc.Get(context.Background(), 100, agencyScope)
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, rebuilt.Version)

	// Unrelated roles are untouched.
	require.NoError(t, svc.InvalidateByRoleID(context.Background(), snowflake.ID(999)))
	assert.Equal(t, 2, repo.deactivateCalls)
}
