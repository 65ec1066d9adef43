package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/buffer"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/usecase/consumption"
)

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (consumption.Result, error) {
	args := m.Called(ctx, tenantID, owner, samples)
	return args.Get(0).(consumption.Result), args.Error(1)
}

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

var transient = domain.WrapError(domain.ErrCodeTransient, "storage unavailable", nil)

func newProcessor(t *testing.T, ing Ingester, health ConnectionHealth) (*BufferProcessor, *buffer.Store) {
	t.Helper()
	store, err := buffer.Open(filepath.Join(t.TempDir(), "buffer.db"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bp, err := NewBufferProcessor(store, health, ing, metrics.New(), nil, ProcessorConfig{
		BatchSize:  10,
		MaxRetries: 2,
		MaxAge:     time.Hour,
	})
	require.NoError(t, err)
	return bp, store
}

func sample() []domain.ConsumptionSample {
	gross := domain.MustDecimal("4.2")
	return []domain.ConsumptionSample{{Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Gross: &gross}}
}

func TestBridgeBuffersAndDrainReplays(t *testing.T) {
	ing := new(mockIngester)
	bp, store := newProcessor(t, ing, staticHealth(true))
	bridge := NewBufferBridge(bp, buffer.SourceMQTT)
	owner := domain.MeterOwner("EAN-1")

	require.NoError(t, bridge.BufferConsumption(context.Background(), 7, owner, sample()))
	assert.Equal(t, 1, bp.Size())

	ing.On("Ingest", mock.Anything, domain.TenantID(7), owner, mock.Anything).
		Return(consumption.Result{Inserted: 1, Chunks: 1}, nil).Once()

	require.NoError(t, bp.Drain(context.Background()))
	assert.Equal(t, 0, bp.Size())
	dead, err := store.DeadLetters()
	require.NoError(t, err)
	assert.Zero(t, dead)
	ing.AssertExpectations(t)
}

func TestDrainSkipsWhileOffline(t *testing.T) {
	ing := new(mockIngester)
	bp, _ := newProcessor(t, ing, staticHealth(false))
	require.NoError(t, NewBufferBridge(bp, "").BufferConsumption(context.Background(), 7, domain.MeterOwner("EAN-1"), sample()))

	require.NoError(t, bp.Drain(context.Background()))
	assert.Equal(t, 1, bp.Size())
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDrainRequeuesThenDeadLetters(t *testing.T) {
	ing := new(mockIngester)
	bp, store := newProcessor(t, ing, nil)
	require.NoError(t, NewBufferBridge(bp, "").BufferConsumption(context.Background(), 7, domain.MeterOwner("EAN-1"), sample()))
	ing.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(consumption.Result{}, transient).Twice()

	require.NoError(t, bp.Drain(context.Background()))
	items, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Retries)
	assert.Contains(t, items[0].LastError, "storage unavailable")

	require.NoError(t, bp.Drain(context.Background()))
	assert.Equal(t, 0, bp.Size())
	dead, err := store.DeadLetters()
	require.NoError(t, err)
	assert.Equal(t, 1, dead)
	ing.AssertExpectations(t)
}

func TestDrainDeadLettersPermanentFailures(t *testing.T) {
	ing := new(mockIngester)
	bp, store := newProcessor(t, ing, nil)
	require.NoError(t, NewBufferBridge(bp, "").BufferConsumption(context.Background(), 7, domain.MeterOwner("gone"), sample()))
	ing.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(consumption.Result{}, domain.ErrMeterNotFound).Once()

	require.NoError(t, bp.Drain(context.Background()))
	assert.Equal(t, 0, bp.Size())
	dead, err := store.DeadLetters()
	require.NoError(t, err)
	assert.Equal(t, 1, dead)
}

func TestCleanupDropsExpiredItems(t *testing.T) {
	bp, _ := newProcessor(t, new(mockIngester), nil)
	require.NoError(t, NewBufferBridge(bp, "").BufferConsumption(context.Background(), 7, domain.MeterOwner("EAN-1"), sample()))

	removed, err := bp.Cleanup(time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = bp.Cleanup(time.Now().Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, bp.Size())
}

func TestInvalidScheduleIsRejected(t *testing.T) {
	_, err := NewBufferProcessor(nil, nil, nil, nil, nil, ProcessorConfig{Schedule: "every now and then"})
	assert.Error(t, err)
}
