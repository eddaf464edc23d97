package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gatehouse/internal/apikey/domain"
	"github.com/smallbiznis/gatehouse/internal/clock"
	"github.com/smallbiznis/gatehouse/internal/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type memRepo struct {
	byHash map[string]*domain.APIKey

	touchCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{byHash: make(map[string]*domain.APIKey)}
}

func (r *memRepo) FindByHash(_ context.Context, _ *gorm.DB, keyHash string) (*domain.APIKey, error) {
	key, ok := r.byHash[keyHash]
	if !ok {
		return nil, nil
	}
	cp := *key
	return &cp, nil
}

func (r *memRepo) Create(_ context.Context, _ *gorm.DB, key *domain.APIKey) error {
	cp := *key
	r.byHash[key.KeyHash] = &cp
	return nil
}

func (r *memRepo) TouchLastUsed(_ context.Context, _ *gorm.DB, id snowflake.ID, at time.Time) error {
	r.touchCalls++
	for _, key := range r.byHash {
		if key.ID == id {
			key.LastUsedAt = &at
		}
	}
	return nil
}

func (r *memRepo) Revoke(_ context.Context, _ *gorm.DB, id snowflake.ID) error {
	for _, key := range r.byHash {
		if key.ID == id {
			key.IsActive = false
		}
	}
	return nil
}

func newTestService(t *testing.T, repo *memRepo) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
}

func subIDp(v snowflake.ID) *snowflake.ID { return &v }

func TestCreateResolve_AgencyKeyRoundTrip(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	key, secret, err := svc.Create(context.Background(), domain.CreateRequest{
		Kind:                 principal.KindAgencyKey,
		Name:                 "ops automation",
		AgencyID:             7,
		AllowedSubAccountIDs: []snowflake.ID{8, 9},
	})
	require.NoError(t, err)
	require.NotNil(t, key)

	assert.True(t, strings.HasPrefix(secret, "ghk_"))
	assert.Equal(t, secret[:12], key.Prefix)
	assert.NotContains(t, key.KeyHash, secret[4:])

	p, err := svc.Resolve(context.Background(), secret)
	require.NoError(t, err)
	assert.Equal(t, principal.KindAgencyKey, p.Kind)
	assert.Equal(t, snowflake.ID(7), p.AgencyID)
	assert.Equal(t, []snowflake.ID{8, 9}, p.AllowedSubAccountIDs)
	assert.Equal(t, 1, repo.touchCalls)
}

func TestCreateResolve_SubAccountAndUserKeys(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	_, subSecret, err := svc.Create(context.Background(), domain.CreateRequest{
		Kind:         principal.KindSubAccountKey,
		Name:         "widget backend",
		AgencyID:     7,
		SubAccountID: subIDp(8),
	})
	require.NoError(t, err)

	p, err := svc.Resolve(context.Background(), subSecret)
	require.NoError(t, err)
	assert.Equal(t, principal.SubAccountKey(8), p)

	userID := snowflake.ID(100)
	_, userSecret, err := svc.Create(context.Background(), domain.CreateRequest{
		Kind:     principal.KindUserKey,
		Name:     "personal token",
		AgencyID: 7,
		UserID:   &userID,
	})
	require.NoError(t, err)

	p, err = svc.Resolve(context.Background(), userSecret)
	require.NoError(t, err)
	assert.Equal(t, principal.UserKey(100), p)
	assert.True(t, p.IsUser())
}

func TestCreate_RejectsIncompleteRequests(t *testing.T) {
	svc := newTestService(t, newMemRepo())

	tests := []struct {
		name string
		req  domain.CreateRequest
	}{
		{"missing agency", domain.CreateRequest{Kind: principal.KindAgencyKey}},
		{"subaccount key without subaccount", domain.CreateRequest{Kind: principal.KindSubAccountKey, AgencyID: 7}},
		{"user key without user", domain.CreateRequest{Kind: principal.KindUserKey, AgencyID: 7}},
		{"session kind not issuable", domain.CreateRequest{Kind: principal.KindUserSession, AgencyID: 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestResolve_RejectsUnknownAndRevokedSecrets(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)

	_, err := svc.Resolve(context.Background(), "bearer-not-a-key")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	_, err = svc.Resolve(context.Background(), "ghk_0000000000000000")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	key, secret, err := svc.Create(context.Background(), domain.CreateRequest{
		Kind:     principal.KindAgencyKey,
		Name:     "short lived",
		AgencyID: 7,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), key.ID))

	_, err = svc.Resolve(context.Background(), secret)
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}
