package tenant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/repository"
	"github.com/OptimCE/crm-backend-sub001/repository/memory"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name   string
		claims []string
		want   domain.Role
	}{
		{"no claims", nil, domain.RoleNone},
		{"global role", []string{"member"}, domain.RoleMember},
		{"scoped role for this community", []string{"member", "c-1:GESTIONNAIRE"}, domain.RoleManager},
		{"scoped role for another community", []string{"c-2:ADMIN", "MEMBER"}, domain.RoleMember},
		{"highest wins", []string{"ADMIN", "c-1:MEMBER"}, domain.RoleAdmin},
		{"unknown ignored", []string{"superuser"}, domain.RoleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := Resolve(" u-1 ", "c-1", tc.claims)
			assert.Equal(t, "u-1", id.Caller)
			assert.Equal(t, "c-1", id.Tenant)
			assert.Equal(t, tc.want, id.Role)
		})
	}
}

func TestResolveIsSoft(t *testing.T) {
	id := Resolve("", "", []string{"c-1:ADMIN"})
	assert.False(t, id.Authenticated())
	assert.Equal(t, domain.RoleNone, id.Role)
}

func TestRunIsolatesConcurrentRequests(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := Resolve("caller", string(rune('a'+i)), nil)
			err := Run(context.Background(), want, func(ctx context.Context) error {
				time.Sleep(time.Millisecond)
				got, ok := FromContext(ctx)
				assert.True(t, ok)
				assert.Equal(t, want.Tenant, got.Tenant)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func signed(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	claims := Claims{
		Tenant: "c-1",
		Roles:  []string{"c-1:MANAGER"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	id, err := ParseToken(signed(t, "s3cret", claims), "s3cret", "idp")
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.Caller)
	assert.Equal(t, "c-1", id.Tenant)
	assert.Equal(t, domain.RoleManager, id.Role)

	_, err = ParseToken(signed(t, "other", claims), "s3cret", "")
	assert.Equal(t, domain.ErrCodeUnauthorized, domain.CodeOf(err))

	_, err = ParseToken(signed(t, "s3cret", claims), "s3cret", "someone-else")
	assert.Equal(t, domain.ErrCodeUnauthorized, domain.CodeOf(err))

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = ParseToken(signed(t, "s3cret", claims), "s3cret", "")
	assert.Equal(t, domain.ErrCodeUnauthorized, domain.CodeOf(err))

	_, err = ParseToken("", "s3cret", "")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

type fixture struct {
	store    *memory.Store
	resolver *Resolver
	tenant   domain.TenantID
	caller   domain.CallerID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	tenantID := store.AddCommunity("c-1", "Community One")
	store.AddCommunity("c-2", "Community Two")
	callerID := store.AddUser("u-1")
	store.AddMember(tenantID, callerID, domain.RoleManager)

	r, err := NewResolver(store.Directory(), 16, time.Minute, metrics.New(), nil)
	require.NoError(t, err)
	return fixture{store: store, resolver: r, tenant: tenantID, caller: callerID}
}

func TestResolverInternalIDs(t *testing.T) {
	f := newFixture(t)
	ctx := WithIdentity(context.Background(), Resolve("u-1", "c-1", []string{"MANAGER"}))

	tenantID, err := f.resolver.InternalTenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.tenant, tenantID)

	callerID, err := f.resolver.InternalCallerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.caller, callerID)
}

func TestResolverErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.InternalTenantID(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	anonymous := WithIdentity(context.Background(), Resolve("", "c-1", nil))
	_, err = f.resolver.InternalTenantID(anonymous)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	unknownCaller := WithIdentity(context.Background(), Resolve("ghost", "c-1", nil))
	_, err = f.resolver.InternalCallerID(unknownCaller)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	unknownTenant := WithIdentity(context.Background(), Resolve("u-1", "c-404", nil))
	_, err = f.resolver.InternalTenantID(unknownTenant)
	assert.Equal(t, domain.ErrCodeForbidden, domain.CodeOf(err))

	notMember := WithIdentity(context.Background(), Resolve("u-1", "c-2", []string{"ADMIN"}))
	_, err = f.resolver.InternalTenantID(notMember)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestResolverBindAndRequire(t *testing.T) {
	f := newFixture(t)
	ctx := WithIdentity(context.Background(), Resolve("u-1", "c-1", []string{"c-1:MEMBER"}))

	bound, id, err := f.resolver.Bind(ctx)
	require.NoError(t, err)
	assert.True(t, id.Bound())
	pinned, ok := FromContext(bound)
	require.True(t, ok)
	assert.Equal(t, f.tenant, pinned.TenantID)

	_, _, err = f.resolver.Require(ctx, domain.RoleMember)
	assert.NoError(t, err)

	_, _, err = f.resolver.Require(ctx, domain.RoleManager)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

type revocableDirectory struct {
	repository.Directory
	member bool
}

func (d *revocableDirectory) IsMember(context.Context, domain.TenantID, domain.CallerID) (bool, error) {
	return d.member, nil
}

func TestResolverForgetsRevokedMembership(t *testing.T) {
	store := memory.New()
	store.AddCommunity("c-1", "Community One")
	store.AddUser("u-1")
	dir := &revocableDirectory{Directory: store.Directory(), member: true}

	r, err := NewResolver(dir, 16, time.Minute, metrics.New(), nil)
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := WithIdentity(context.Background(), Resolve("u-1", "c-1", []string{"MANAGER"}))

	_, _, err = r.Require(ctx, domain.RoleManager)
	require.NoError(t, err)

	dir.member = false
	now = now.Add(30 * time.Second)
	_, _, err = r.Require(ctx, domain.RoleManager)
	assert.NoError(t, err, "membership is served from cache within its ttl")

	now = now.Add(31 * time.Second)
	_, _, err = r.Require(ctx, domain.RoleManager)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}
