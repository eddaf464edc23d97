package tenantctx

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/gatehouse/internal/membership/domain"
	"github.com/smallbiznis/gatehouse/internal/principal"
	"github.com/smallbiznis/gatehouse/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMemberships struct {
	parents map[snowflake.ID]snowflake.ID
}

func (m *stubMemberships) ActiveRoleID(context.Context, scope.Scope, snowflake.ID) (*snowflake.ID, error) {
	return nil, nil
}

func (m *stubMemberships) HasActiveMembership(context.Context, scope.Scope, snowflake.ID) (bool, error) {
	return false, nil
}

func (m *stubMemberships) GrantedPermissionKeys(context.Context, snowflake.ID) ([]string, error) {
	return nil, nil
}

func (m *stubMemberships) ReplaceGrants(context.Context, membershipdomain.ReplaceGrantsRequest) error {
	return nil
}

func (m *stubMemberships) SubAccountBelongsToAgency(_ context.Context, agencyID, subAccountID snowflake.ID) (bool, error) {
	parent, ok := m.parents[subAccountID]
	return ok && parent == agencyID, nil
}

func (m *stubMemberships) AgencyOfSubAccount(_ context.Context, subAccountID snowflake.ID) (*snowflake.ID, error) {
	parent, ok := m.parents[subAccountID]
	if !ok {
		return nil, nil
	}
	return &parent, nil
}

func newTestResolver(parents map[snowflake.ID]snowflake.ID) *Resolver {
	return NewResolver(ResolverParams{
		Log:         zap.NewNop(),
		Memberships: &stubMemberships{parents: parents},
	})
}

func contextCode(t *testing.T, err error) (string, int) {
	t.Helper()
	var ctxErr *ContextError
	require.True(t, errors.As(err, &ctxErr), "expected ContextError, got %v", err)
	return ctxErr.Code, ctxErr.StatusHint
}

func TestResolveUser_AgencyHeaderRequired(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.Resolve(context.Background(), principal.UserSession(100), "", "")
	code, status := contextCode(t, err)
	assert.Equal(t, CodeContextMissing, code)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestResolveUser_MalformedSelectors(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.Resolve(context.Background(), principal.UserSession(100), "not-a-snowflake", "")
	code, status := contextCode(t, err)
	assert.Equal(t, CodeContextInvalid, code)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	_, err = r.Resolve(context.Background(), principal.UserSession(100), "7", "bogus")
	code, _ = contextCode(t, err)
	assert.Equal(t, CodeContextInvalid, code)
}

func TestResolveUser_AgencyAndSubAccountScopes(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 7})

	sc, err := r.Resolve(context.Background(), principal.UserSession(100), "7", "")
	require.NoError(t, err)
	assert.Equal(t, scope.Agency(7), sc)

	sc, err = r.Resolve(context.Background(), principal.UserSession(100), "7", "8")
	require.NoError(t, err)
	assert.Equal(t, scope.SubAccount(7, 8), sc)
}

func TestResolveUser_SubAccountOutsideAgency(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 99})

	_, err := r.Resolve(context.Background(), principal.UserSession(100), "7", "8")
	code, _ := contextCode(t, err)
	assert.Equal(t, CodeContextInvalid, code)
}

func TestResolveSubAccountKey_PinnedScope(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 7})
	p := principal.SubAccountKey(8)

	sc, err := r.Resolve(context.Background(), p, "", "")
	require.NoError(t, err)
	assert.Equal(t, scope.SubAccount(7, 8), sc)

	// Matching selectors are accepted.
	sc, err = r.Resolve(context.Background(), p, "7", "8")
	require.NoError(t, err)
	assert.Equal(t, scope.SubAccount(7, 8), sc)
}

func TestResolveSubAccountKey_ConflictingSelectorRejected(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 7})
	p := principal.SubAccountKey(8)

	_, err := r.Resolve(context.Background(), p, "", "9")
	code, status := contextCode(t, err)
	assert.Equal(t, CodeContextForbidden, code)
	assert.Equal(t, http.StatusForbidden, status)

	_, err = r.Resolve(context.Background(), p, "99", "")
	code, _ = contextCode(t, err)
	assert.Equal(t, CodeContextForbidden, code)
}

func TestResolveSubAccountKey_UnknownSubAccount(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.Resolve(context.Background(), principal.SubAccountKey(8), "", "")
	code, _ := contextCode(t, err)
	assert.Equal(t, CodeContextInvalid, code)
}

func TestResolveAgencyKey_Selection(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 7, 9: 7})
	p := principal.AgencyKey(7, nil)

	sc, err := r.Resolve(context.Background(), p, "", "")
	require.NoError(t, err)
	assert.Equal(t, scope.Agency(7), sc)

	sc, err = r.Resolve(context.Background(), p, "7", "8")
	require.NoError(t, err)
	assert.Equal(t, scope.SubAccount(7, 8), sc)
}

func TestResolveAgencyKey_ForeignAgencyRejected(t *testing.T) {
	r := newTestResolver(nil)
	p := principal.AgencyKey(7, nil)

	_, err := r.Resolve(context.Background(), p, "99", "")
	code, _ := contextCode(t, err)
	assert.Equal(t, CodeContextForbidden, code)
}

func TestResolveAgencyKey_AllowListEnforced(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 7, 9: 7})
	p := principal.AgencyKey(7, []snowflake.ID{8})

	sc, err := r.Resolve(context.Background(), p, "", "8")
	require.NoError(t, err)
	assert.Equal(t, scope.SubAccount(7, 8), sc)

	_, err = r.Resolve(context.Background(), p, "", "9")
	code, _ := contextCode(t, err)
	assert.Equal(t, CodeContextForbidden, code)
}

func TestResolveAgencyKey_SubAccountOutsideAgency(t *testing.T) {
	r := newTestResolver(map[snowflake.ID]snowflake.ID{8: 99})
	p := principal.AgencyKey(7, nil)

	_, err := r.Resolve(context.Background(), p, "", "8")
	code, _ := contextCode(t, err)
	assert.Equal(t, CodeContextInvalid, code)
}
