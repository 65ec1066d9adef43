// Package tenant carries the caller's community, identity and role through
// a request's context.Context and translates external identifiers into the
// internal keys every tenant-scoped query is filtered on.
package tenant

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
)

// Identity is what the identity provider said about the caller. TenantID
// and CallerID stay zero until a Resolver binds them.
type Identity struct {
	Caller string
	Tenant string
	Role   domain.Role

	TenantID domain.TenantID
	CallerID domain.CallerID
}

// Authenticated reports whether a caller was supplied.
func (i Identity) Authenticated() bool { return i.Caller != "" }

// Bound reports whether the internal ids have been resolved.
func (i Identity) Bound() bool { return i.TenantID.Valid() && i.CallerID > 0 }

// Resolve parses raw identity-provider values without any I/O. Missing
// values stay empty. A role claim is either "ROLE", applying to every
// community, or "<community>:ROLE"; the highest claim applicable to
// rawTenant wins.
func Resolve(rawCaller, rawTenant string, rawRoleClaims []string) Identity {
	id := Identity{
		Caller: strings.TrimSpace(rawCaller),
		Tenant: strings.TrimSpace(rawTenant),
	}
	for _, claim := range rawRoleClaims {
		scope, name, scoped := strings.Cut(claim, ":")
		if !scoped {
			name = scope
		} else if id.Tenant == "" || strings.TrimSpace(scope) != id.Tenant {
			continue
		}
		if role := domain.ParseRole(name); role > id.Role {
			id.Role = role
		}
	}
	return id
}

type ctxKey struct{}

// WithIdentity returns a context carrying id. Log lines emitted through
// logger.FromContext pick up the community and caller.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	fields := make([]zap.Field, 0, 3)
	if id.Tenant != "" {
		fields = append(fields, zap.String("community", id.Tenant))
	}
	if id.Caller != "" {
		fields = append(fields, zap.String("caller", id.Caller))
	}
	if id.TenantID.Valid() {
		fields = append(fields, zap.Int64("tenant_id", int64(id.TenantID)))
	}
	ctx = logger.ContextWithFields(ctx, fields...)
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity bound to ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Run calls fn with a context scoped to id. Goroutines started by fn with
// that context see the same identity; sibling requests never do.
func Run(ctx context.Context, id Identity, fn func(ctx context.Context) error) error {
	return fn(WithIdentity(ctx, id))
}
