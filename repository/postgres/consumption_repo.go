package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

// consumptionTable names the series table and owner column for one owner
// kind. Only these constants are ever spliced into SQL.
type consumptionTable struct {
	name   string
	column string
	parent string
}

var consumptionTables = map[domain.OwnerKind]consumptionTable{
	domain.OwnerMeter:            {name: "meter_consumptions", column: "ean", parent: "meters"},
	domain.OwnerSharingOperation: {name: "sharing_operation_consumptions", column: "sharing_operation_id", parent: "sharing_operations"},
}

type consumptionRepository struct {
	scope Scope
}

func tableFor(owner domain.ConsumptionOwner) (consumptionTable, any, error) {
	if err := owner.Validate(); err != nil {
		return consumptionTable{}, nil, err
	}
	table := consumptionTables[owner.Kind]
	if owner.Kind == domain.OwnerMeter {
		return table, owner.EAN, nil
	}
	return table, owner.OperationID, nil
}

func (r *consumptionRepository) OwnerExists(ctx context.Context, owner domain.ConsumptionOwner) (bool, error) {
	table, key, err := tableFor(owner)
	if err != nil {
		return false, err
	}
	parentColumn := "id"
	if owner.Kind == domain.OwnerMeter {
		parentColumn = "ean"
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE tenant_id = $1 AND %s = $2)`, table.parent, parentColumn)
	return r.scope.exists(ctx, query, key)
}

func (r *consumptionRepository) FindByTimestamps(ctx context.Context, owner domain.ConsumptionOwner, timestamps []time.Time) ([]domain.ConsumptionSample, error) {
	table, key, err := tableFor(owner)
	if err != nil {
		return nil, err
	}
	if len(timestamps) == 0 {
		return []domain.ConsumptionSample{}, nil
	}
	query := fmt.Sprintf(`
	SELECT id, measured_at, gross, net, shared, injection
	FROM %s
	WHERE tenant_id = $1 AND %s = $2 AND measured_at = ANY($3)
	`, table.name, table.column)

	rows, err := r.scope.query(ctx, query, key, timestamps)
	if err != nil {
		return nil, err
	}
	return collectSamples(rows)
}

func (r *consumptionRepository) SaveBatch(ctx context.Context, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) error {
	table, key, err := tableFor(owner)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	update := fmt.Sprintf(`
	UPDATE %s
	SET gross = $4, net = $5, shared = $6, injection = $7
	WHERE tenant_id = $1 AND %s = $2 AND id = $3
	RETURNING id
	`, table.name, table.column)
	insert := fmt.Sprintf(`
	INSERT INTO %s (tenant_id, %s, measured_at, gross, net, shared, injection)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`, table.name, table.column)

	batch := &pgx.Batch{}
	for i := range samples {
		s := &samples[i]
		var err error
		if s.ID > 0 {
			_, err = r.scope.queue(batch, update, key, s.ID, s.Gross, s.Net, s.Shared, s.Injection)
		} else {
			_, err = r.scope.queue(batch, insert, key, s.Timestamp.UTC(), s.Gross, s.Net, s.Shared, s.Injection)
		}
		if err != nil {
			return err
		}
	}

	results := r.scope.sendBatch(ctx, batch)
	for i := range samples {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			_ = results.Close()
			return fmt.Errorf("save %s sample %s: %w", owner, samples[i].Timestamp.Format(time.RFC3339), err)
		}
		samples[i].ID = id
	}
	return results.Close()
}

func (r *consumptionRepository) Range(ctx context.Context, owner domain.ConsumptionOwner, from, to time.Time) ([]domain.ConsumptionSample, error) {
	table, key, err := tableFor(owner)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
	SELECT id, measured_at, gross, net, shared, injection
	FROM %s
	WHERE tenant_id = $1 AND %s = $2 AND measured_at >= $3 AND measured_at < $4
	ORDER BY measured_at
	`, table.name, table.column)

	rows, err := r.scope.query(ctx, query, key, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return collectSamples(rows)
}

func collectSamples(rows pgx.Rows) ([]domain.ConsumptionSample, error) {
	defer rows.Close()

	samples := make([]domain.ConsumptionSample, 0)
	for rows.Next() {
		var s domain.ConsumptionSample
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.Gross, &s.Net, &s.Shared, &s.Injection); err != nil {
			return nil, err
		}
		s.Timestamp = s.Timestamp.UTC()
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

var _ repository.ConsumptionRepository = (*consumptionRepository)(nil)
