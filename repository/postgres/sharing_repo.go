package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

type sharingOperationRepository struct {
	scope Scope
}

const operationKeyColumns = `id, tenant_id, sharing_operation_id, key_id, start_date, end_date, status, created_at`

func (r *sharingOperationRepository) Get(ctx context.Context, id int64) (*domain.SharingOperation, error) {
	const query = `
	SELECT id, tenant_id, name, type, created_at
	FROM sharing_operations
	WHERE tenant_id = $1 AND id = $2
	`
	var (
		op     domain.SharingOperation
		tenant int64
		typ    int16
	)
	if err := r.scope.queryRow(ctx, query, id).Scan(&op.ID, &tenant, &op.Name, &typ, &op.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOperationNotFound
		}
		return nil, err
	}
	op.TenantID = domain.TenantID(tenant)
	op.Type = domain.OperationType(typ)
	return &op, nil
}

func (r *sharingOperationRepository) Lock(ctx context.Context, id int64) error {
	const query = `SELECT id FROM sharing_operations WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	var locked int64
	if err := r.scope.queryRow(ctx, query, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOperationNotFound
		}
		return err
	}
	return nil
}

func (r *sharingOperationRepository) AllocationKeyExists(ctx context.Context, keyID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM allocation_keys WHERE tenant_id = $1 AND id = $2)`
	return r.scope.exists(ctx, query, keyID)
}

func (r *sharingOperationRepository) ListKeys(ctx context.Context, operationID int64) ([]domain.SharingOperationKey, error) {
	const query = `
	SELECT ` + operationKeyColumns + `
	FROM sharing_operation_keys
	WHERE tenant_id = $1 AND sharing_operation_id = $2
	ORDER BY start_date DESC, id DESC
	`
	rows, err := r.scope.query(ctx, query, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]domain.SharingOperationKey, 0)
	for rows.Next() {
		key, err := scanOperationKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

func (r *sharingOperationRepository) OpenKey(ctx context.Context, operationID, keyID int64) (*domain.SharingOperationKey, error) {
	const query = `
	SELECT ` + operationKeyColumns + `
	FROM sharing_operation_keys
	WHERE tenant_id = $1 AND sharing_operation_id = $2 AND key_id = $3 AND end_date IS NULL
	ORDER BY start_date DESC, id DESC
	LIMIT 1
	`
	key, err := scanOperationKey(r.scope.queryRow(ctx, query, operationID, keyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssociationNotFound
		}
		return nil, err
	}
	return key, nil
}

func (r *sharingOperationRepository) HasOpenPending(ctx context.Context, operationID int64) (bool, error) {
	const query = `
	SELECT EXISTS (
		SELECT 1 FROM sharing_operation_keys
		WHERE tenant_id = $1 AND sharing_operation_id = $2 AND status = $3 AND end_date IS NULL
	)`
	return r.scope.exists(ctx, query, operationID, int16(domain.KeyPending))
}

func (r *sharingOperationRepository) InsertKey(ctx context.Context, key *domain.SharingOperationKey) error {
	if key == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO sharing_operation_keys (tenant_id, sharing_operation_id, key_id, start_date, end_date, status)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at
	`
	if err := r.scope.queryRow(ctx, query,
		key.SharingOperationID,
		key.KeyID,
		key.StartDate,
		key.EndDate,
		int16(key.Status),
	).Scan(&key.ID, &key.CreatedAt); err != nil {
		return err
	}
	key.TenantID = r.scope.Tenant()
	return nil
}

func (r *sharingOperationRepository) CloseApprovedKeys(ctx context.Context, operationID int64, at time.Time, exceptID int64) (int64, error) {
	const query = `
	UPDATE sharing_operation_keys
	SET end_date = $3
	WHERE tenant_id = $1 AND sharing_operation_id = $2 AND status = $4 AND end_date IS NULL AND id <> $5
	`
	tag, err := r.scope.exec(ctx, query, operationID, at, int16(domain.KeyApproved), exceptID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *sharingOperationRepository) TransitionKey(ctx context.Context, id int64, from, to domain.KeyStatus, end *time.Time) error {
	const query = `
	UPDATE sharing_operation_keys
	SET status = $4, end_date = COALESCE($5, end_date)
	WHERE tenant_id = $1 AND id = $2 AND status = $3 AND end_date IS NULL
	`
	tag, err := r.scope.exec(ctx, query, id, int16(from), int16(to), end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAssociationNotOpen
	}
	return nil
}

func (r *sharingOperationRepository) CloseKey(ctx context.Context, id int64, at time.Time) error {
	const query = `
	UPDATE sharing_operation_keys
	SET end_date = $3
	WHERE tenant_id = $1 AND id = $2 AND end_date IS NULL
	`
	tag, err := r.scope.exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAssociationNotFound
	}
	return nil
}

func scanOperationKey(row pgx.Row) (*domain.SharingOperationKey, error) {
	var (
		key    domain.SharingOperationKey
		tenant int64
		status int16
	)
	if err := row.Scan(
		&key.ID,
		&tenant,
		&key.SharingOperationID,
		&key.KeyID,
		&key.StartDate,
		&key.EndDate,
		&status,
		&key.CreatedAt,
	); err != nil {
		return nil, err
	}
	key.TenantID = domain.TenantID(tenant)
	key.Status = domain.KeyStatus(status)
	return &key, nil
}

var _ repository.SharingOperationRepository = (*sharingOperationRepository)(nil)
