package tenant

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

// Resolver translates the external ids of the identity in a context into
// internal keys. Positive lookups are kept in in-process ARC caches; misses
// always reach the directory so new communities and members show up
// immediately. Membership entries expire after memberTTL so a revoked
// member loses access within that window.
type Resolver struct {
	dir       repository.Directory
	tenants   *lru.ARCCache
	callers   *lru.ARCCache
	members   *lru.ARCCache
	memberTTL time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewResolver(dir repository.Directory, cacheSize int, memberTTL time.Duration, m *metrics.Metrics, log *zap.Logger) (*Resolver, error) {
	if dir == nil {
		return nil, fmt.Errorf("resolver requires a directory")
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if memberTTL <= 0 {
		memberTTL = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	tenants, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, err
	}
	callers, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, err
	}
	members, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		dir:       dir,
		tenants:   tenants,
		callers:   callers,
		members:   members,
		memberTTL: memberTTL,
		now:       time.Now,
		metrics:   m,
		logger:    log,
	}, nil
}

// InternalCallerID returns the internal key of the caller in ctx.
func (r *Resolver) InternalCallerID(ctx context.Context) (domain.CallerID, error) {
	id, ok := FromContext(ctx)
	if !ok || !id.Authenticated() {
		return 0, domain.ErrNotAuthenticated
	}
	if id.CallerID > 0 {
		return id.CallerID, nil
	}

	if cached, ok := r.callers.Get(id.Caller); ok {
		r.metrics.IdentityLookup("caller", "cache")
		return cached.(domain.CallerID), nil
	}
	caller, err := r.dir.CallerByExternalID(ctx, id.Caller)
	if err != nil {
		return 0, err
	}
	r.metrics.IdentityLookup("caller", "directory")
	r.callers.Add(id.Caller, caller)
	return caller, nil
}

// InternalTenantID returns the internal key of the community in ctx. The
// caller must be authenticated and a member of that community.
func (r *Resolver) InternalTenantID(ctx context.Context) (domain.TenantID, error) {
	id, ok := FromContext(ctx)
	if !ok || !id.Authenticated() {
		return 0, domain.ErrNotAuthenticated
	}
	if id.TenantID.Valid() {
		return id.TenantID, nil
	}
	if id.Tenant == "" {
		return 0, domain.ErrNotAuthorized
	}

	caller, err := r.InternalCallerID(ctx)
	if err != nil {
		return 0, err
	}
	tenant, err := r.lookupTenant(ctx, id.Tenant)
	if err != nil {
		return 0, err
	}
	if err := r.checkMember(ctx, tenant, caller); err != nil {
		return 0, err
	}
	return tenant, nil
}

// Bind resolves both internal ids once and pins them in the returned
// context for the rest of the request.
func (r *Resolver) Bind(ctx context.Context) (context.Context, Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return ctx, Identity{}, domain.ErrNotAuthenticated
	}
	if id.Bound() {
		return ctx, id, nil
	}
	tenant, err := r.InternalTenantID(ctx)
	if err != nil {
		return ctx, id, err
	}
	caller, err := r.InternalCallerID(ctx)
	if err != nil {
		return ctx, id, err
	}
	id.TenantID = tenant
	id.CallerID = caller

	bound := WithIdentity(ctx, id)
	logger.FromContext(bound, r.logger).Debug("identity bound", zap.String("role", id.Role.String()))
	return bound, id, nil
}

// Require binds the identity and checks that its role grants min.
func (r *Resolver) Require(ctx context.Context, min domain.Role) (context.Context, Identity, error) {
	bound, id, err := r.Bind(ctx)
	if err != nil {
		return ctx, id, err
	}
	if !id.Role.AtLeast(min) {
		return ctx, id, domain.WrapError(domain.ErrCodeForbidden, domain.ErrNotAuthorized.Message,
			fmt.Errorf("role %q below required %q", id.Role, min))
	}
	return bound, id, nil
}

func (r *Resolver) lookupTenant(ctx context.Context, external string) (domain.TenantID, error) {
	if cached, ok := r.tenants.Get(external); ok {
		r.metrics.IdentityLookup("tenant", "cache")
		return cached.(domain.TenantID), nil
	}
	tenant, err := r.dir.TenantByExternalID(ctx, external)
	if err != nil {
		if domain.CodeOf(err) == domain.ErrCodeNotFound {
			return 0, domain.ErrTenantNotFound
		}
		return 0, err
	}
	r.metrics.IdentityLookup("tenant", "directory")
	r.tenants.Add(external, tenant)
	return tenant, nil
}

func (r *Resolver) checkMember(ctx context.Context, tenant domain.TenantID, caller domain.CallerID) error {
	key := fmt.Sprintf("%d:%d", tenant, caller)
	if cached, ok := r.members.Get(key); ok {
		if r.now().Before(cached.(time.Time)) {
			r.metrics.IdentityLookup("membership", "cache")
			return nil
		}
		r.members.Remove(key)
	}
	member, err := r.dir.IsMember(ctx, tenant, caller)
	if err != nil {
		return err
	}
	r.metrics.IdentityLookup("membership", "directory")
	if !member {
		return domain.ErrNotAuthorized
	}
	r.members.Add(key, r.now().Add(r.memberTTL))
	return nil
}
