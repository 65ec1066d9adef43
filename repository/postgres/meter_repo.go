package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

type meterRepository struct {
	scope Scope
}

const meterConfigurationColumns = `id, tenant_id, ean, start_date, end_date, status, rate, client_type, holder_id, sharing_operation_id, description, created_at`

func (r *meterRepository) GetByEAN(ctx context.Context, ean string) (*domain.Meter, error) {
	const query = `
	SELECT id, tenant_id, ean, address, created_at
	FROM meters
	WHERE tenant_id = $1 AND ean = $2
	`
	var (
		m      domain.Meter
		tenant int64
	)
	if err := r.scope.queryRow(ctx, query, ean).Scan(&m.ID, &tenant, &m.EAN, &m.Address, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMeterNotFound
		}
		return nil, err
	}
	m.TenantID = domain.TenantID(tenant)
	return &m, nil
}

func (r *meterRepository) ListConfigurations(ctx context.Context, ean string) ([]domain.MeterConfiguration, error) {
	const query = `
	SELECT ` + meterConfigurationColumns + `
	FROM meter_configurations
	WHERE tenant_id = $1 AND ean = $2
	ORDER BY start_date DESC, id DESC
	`
	rows, err := r.scope.query(ctx, query, ean)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]domain.MeterConfiguration, 0)
	for rows.Next() {
		cfg, err := scanMeterConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (r *meterRepository) HasConfigurationStarting(ctx context.Context, ean string, start time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM meter_configurations WHERE tenant_id = $1 AND ean = $2 AND start_date = $3)`
	return r.scope.exists(ctx, query, ean, start)
}

func (r *meterRepository) InsertConfiguration(ctx context.Context, cfg *domain.MeterConfiguration) error {
	if cfg == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	INSERT INTO meter_configurations (tenant_id, ean, start_date, end_date, status, rate, client_type, holder_id, sharing_operation_id, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id, created_at
	`

	if err := r.scope.queryRow(ctx, query,
		cfg.EAN,
		cfg.StartDate,
		cfg.EndDate,
		int16(cfg.Status),
		int16(cfg.Rate),
		int16(cfg.ClientType),
		cfg.HolderID,
		cfg.SharingOperationID,
		cfg.Description,
	).Scan(&cfg.ID, &cfg.CreatedAt); err != nil {
		return err
	}
	cfg.TenantID = r.scope.Tenant()
	return nil
}

func (r *meterRepository) CloseOpenConfigurations(ctx context.Context, ean string, at time.Time) (int64, error) {
	const query = `
	UPDATE meter_configurations
	SET end_date = $3
	WHERE tenant_id = $1 AND ean = $2 AND end_date IS NULL AND start_date < $3
	`
	tag, err := r.scope.exec(ctx, query, ean, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMeterConfiguration(row pgx.Row) (*domain.MeterConfiguration, error) {
	var (
		cfg                      domain.MeterConfiguration
		tenant                   int64
		status, rate, clientType int16
	)
	if err := row.Scan(
		&cfg.ID,
		&tenant,
		&cfg.EAN,
		&cfg.StartDate,
		&cfg.EndDate,
		&status,
		&rate,
		&clientType,
		&cfg.HolderID,
		&cfg.SharingOperationID,
		&cfg.Description,
		&cfg.CreatedAt,
	); err != nil {
		return nil, err
	}
	cfg.TenantID = domain.TenantID(tenant)
	cfg.Status = domain.MeterStatus(status)
	cfg.Rate = domain.TariffRate(rate)
	cfg.ClientType = domain.ClientType(clientType)
	return &cfg, nil
}

var _ repository.MeterRepository = (*meterRepository)(nil)
