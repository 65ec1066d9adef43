package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

// Querier is the subset of pgx.Tx the repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Scope binds a transaction to one tenant. Statements issued through it
// must filter on tenant_id = $1; the tenant id is always prepended to the
// caller's arguments, so call sites start their own placeholders at $2.
type Scope struct {
	q      Querier
	tenant domain.TenantID
}

// NewScope refuses to build a scope without a resolved tenant.
func NewScope(q Querier, tenant domain.TenantID) (Scope, error) {
	if q == nil {
		return Scope{}, fmt.Errorf("scope requires a querier")
	}
	if !tenant.Valid() {
		return Scope{}, domain.ErrNotAuthorized
	}
	return Scope{q: q, tenant: tenant}, nil
}

func (s Scope) Tenant() domain.TenantID { return s.tenant }

func (s Scope) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := checkScoped(sql); err != nil {
		return pgconn.CommandTag{}, err
	}
	return s.q.Exec(ctx, sql, s.bind(args)...)
}

func (s Scope) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := checkScoped(sql); err != nil {
		return nil, err
	}
	return s.q.Query(ctx, sql, s.bind(args)...)
}

func (s Scope) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := checkScoped(sql); err != nil {
		return errRow{err: err}
	}
	return s.q.QueryRow(ctx, sql, s.bind(args)...)
}

func (s Scope) exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var found bool
	if err := s.queryRow(ctx, sql, args...).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

func (s Scope) queue(b *pgx.Batch, sql string, args ...any) (*pgx.QueuedQuery, error) {
	if err := checkScoped(sql); err != nil {
		return nil, err
	}
	return b.Queue(sql, s.bind(args)...), nil
}

func (s Scope) sendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return s.q.SendBatch(ctx, b)
}

func (s Scope) bind(args []any) []any {
	bound := make([]any, 0, len(args)+1)
	bound = append(bound, int64(s.tenant))
	return append(bound, args...)
}

// checkScoped rejects statements that do not bind tenant_id to $1.
func checkScoped(sql string) error {
	if !strings.Contains(sql, "tenant_id") || !strings.Contains(sql, "$1") {
		return fmt.Errorf("statement is not tenant scoped: %.60q", strings.TrimSpace(sql))
	}
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
