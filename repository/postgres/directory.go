package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

// RowQuerier is satisfied by *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type directory struct {
	db RowQuerier
}

// NewDirectory returns the identity directory. Its lookups run outside any
// tenant scope since they are what resolves the tenant.
func NewDirectory(db RowQuerier) repository.Directory {
	return &directory{db: db}
}

func (d *directory) TenantByExternalID(ctx context.Context, externalID string) (domain.TenantID, error) {
	if externalID == "" {
		return 0, domain.ErrNotAuthorized
	}
	const query = `SELECT id FROM communities WHERE external_id = $1`
	var id int64
	if err := d.db.QueryRow(ctx, query, externalID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrTenantNotFound
		}
		return 0, translate(err)
	}
	return domain.TenantID(id), nil
}

func (d *directory) CallerByExternalID(ctx context.Context, externalID string) (domain.CallerID, error) {
	if externalID == "" {
		return 0, domain.ErrNotAuthenticated
	}
	const query = `SELECT id FROM users WHERE external_id = $1`
	var id int64
	if err := d.db.QueryRow(ctx, query, externalID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotAuthenticated
		}
		return 0, translate(err)
	}
	return domain.CallerID(id), nil
}

func (d *directory) IsMember(ctx context.Context, tenant domain.TenantID, caller domain.CallerID) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM community_users WHERE tenant_id = $1 AND user_id = $2)`
	var found bool
	if err := d.db.QueryRow(ctx, query, int64(tenant), int64(caller)).Scan(&found); err != nil {
		return false, translate(err)
	}
	return found, nil
}
