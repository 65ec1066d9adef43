package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OptimCE/crm-backend-sub001/domain"
)

var sampleColumns = []string{"id", "measured_at", "gross", "net", "shared", "injection"}

func decimal(s string) *domain.Decimal {
	d := domain.MustDecimal(s)
	return &d
}

// batchRecorder keeps the pgxmock pool for plain statements and records
// what SaveBatch queues, since pgxmock/v3 does not mock batches.
type batchRecorder struct {
	pgxmock.PgxPoolIface
	queued []*pgx.QueuedQuery
	ids    []int64
	failAt int
	closed bool
}

func (b *batchRecorder) SendBatch(_ context.Context, batch *pgx.Batch) pgx.BatchResults {
	b.queued = append(b.queued, batch.QueuedQueries...)
	return &recordedResults{recorder: b}
}

type recordedResults struct {
	recorder *batchRecorder
	next     int
}

func (r *recordedResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec in batch")
}

func (r *recordedResults) Query() (pgx.Rows, error) {
	return nil, errors.New("unexpected query in batch")
}

func (r *recordedResults) QueryRow() pgx.Row {
	i := r.next
	r.next++
	if i == r.recorder.failAt {
		return errRow{err: &pgconn.PgError{Code: pgUniqueViolation}}
	}
	return idRow(r.recorder.ids[i])
}

func (r *recordedResults) Close() error {
	r.recorder.closed = true
	return nil
}

type idRow int64

func (r idRow) Scan(dest ...any) error {
	*dest[0].(*int64) = int64(r)
	return nil
}

func newBatchStore(t *testing.T, tenant domain.TenantID, ids ...int64) (*batchRecorder, *store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	rec := &batchRecorder{PgxPoolIface: mock, ids: ids, failAt: -1}
	scope, err := NewScope(rec, tenant)
	require.NoError(t, err)
	return rec, newStore(scope)
}

func TestConsumptionFindByTimestamps(t *testing.T) {
	mock, s := newMockStore(t, 5)
	ts := []time.Time{time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)}
	gross := decimal("1.25")

	mock.ExpectQuery(`FROM meter_consumptions\s+WHERE tenant_id = \$1 AND ean = \$2 AND measured_at = ANY\(\$3\)`).
		WithArgs(int64(5), "EAN-1", ts).
		WillReturnRows(mock.NewRows(sampleColumns).AddRow(int64(40), ts[0], gross, nil, nil, nil))

	rows, err := s.Consumption().FindByTimestamps(context.Background(), domain.MeterOwner("EAN-1"), ts)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(40), rows[0].ID)
	assert.True(t, rows[0].Timestamp.Equal(ts[0]))
	assert.Equal(t, "1.25", rows[0].Gross.String())
	assert.Nil(t, rows[0].Net)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionFindByTimestampsSkipsEmptyChunk(t *testing.T) {
	mock, s := newMockStore(t, 5)

	rows, err := s.Consumption().FindByTimestamps(context.Background(), domain.OperationOwner(3), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionRange(t *testing.T) {
	mock, s := newMockStore(t, 5)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(`FROM sharing_operation_consumptions\s+WHERE tenant_id = \$1 AND sharing_operation_id = \$2 AND measured_at >= \$3 AND measured_at < \$4\s+ORDER BY measured_at`).
		WithArgs(int64(5), int64(3), from, to).
		WillReturnRows(mock.NewRows(sampleColumns).
			AddRow(int64(1), from, decimal("1"), nil, nil, nil).
			AddRow(int64(2), from.Add(15*time.Minute), nil, decimal("2"), nil, nil))

	rows, err := s.Consumption().Range(context.Background(), domain.OperationOwner(3), from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1].ID)
	assert.Equal(t, "2", rows[1].Net.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumptionSaveBatchQueuesUpdatesAndInserts(t *testing.T) {
	rec, s := newBatchStore(t, 5, 40, 77)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	samples := []domain.ConsumptionSample{
		{ID: 40, Timestamp: ts, Gross: decimal("2")},
		{Timestamp: ts.Add(15 * time.Minute), Net: decimal("0.5")},
	}

	err := s.Consumption().SaveBatch(context.Background(), domain.MeterOwner("EAN-1"), samples)
	require.NoError(t, err)

	require.Len(t, rec.queued, 2)
	update, insert := rec.queued[0], rec.queued[1]
	assert.Contains(t, update.SQL, "UPDATE meter_consumptions")
	assert.Contains(t, update.SQL, "WHERE tenant_id = $1 AND ean = $2 AND id = $3")
	assert.Equal(t, []any{int64(5), "EAN-1", int64(40)}, update.Arguments[:3])
	assert.Contains(t, insert.SQL, "INSERT INTO meter_consumptions (tenant_id, ean, measured_at")
	assert.Equal(t, []any{int64(5), "EAN-1", ts.Add(15 * time.Minute)}, insert.Arguments[:3])

	assert.Equal(t, int64(40), samples[0].ID)
	assert.Equal(t, int64(77), samples[1].ID)
	assert.True(t, rec.closed)
}

func TestConsumptionSaveBatchSurfacesFailingRow(t *testing.T) {
	rec, s := newBatchStore(t, 5, 1, 2, 3)
	rec.failAt = 1
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	samples := []domain.ConsumptionSample{
		{Timestamp: ts}, {Timestamp: ts.Add(15 * time.Minute)}, {Timestamp: ts.Add(30 * time.Minute)},
	}

	err := s.Consumption().SaveBatch(context.Background(), domain.OperationOwner(3), samples)
	require.Error(t, err)
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
	assert.Equal(t, domain.ErrCodeConflict, domain.CodeOf(translate(err)))
	assert.True(t, rec.closed)
	assert.Equal(t, int64(0), samples[2].ID)
}
