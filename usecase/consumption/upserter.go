package consumption

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
	"github.com/OptimCE/crm-backend-sub001/repository"
	"github.com/OptimCE/crm-backend-sub001/usecase"
)

const DefaultChunkSize = 1000

// Result counts what an upsert did.
type Result struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Chunks   int `json:"chunks"`
}

func (r Result) Rows() int { return r.Inserted + r.Updated }

// Upserter merges timestamped samples into an owner's series in fixed-size
// chunks: one lookup and one batch write per chunk.
type Upserter struct {
	uow       repository.UnitOfWork
	auth      usecase.Authorizer
	buffer    usecase.ConsumptionBuffer
	chunkSize int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New builds an upserter. buf may be nil, in which case IngestOrBuffer
// never parks batches.
func New(uow repository.UnitOfWork, auth usecase.Authorizer, chunkSize int, buf usecase.ConsumptionBuffer, m *metrics.Metrics, logger *zap.Logger) (*Upserter, error) {
	if chunkSize <= 0 {
		return nil, domain.ErrInvalidChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upserter{
		uow:       uow,
		auth:      auth,
		buffer:    buf,
		chunkSize: chunkSize,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Upsert merges samples for owner in the caller's community.
func (u *Upserter) Upsert(ctx context.Context, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (Result, error) {
	ctx, id, err := u.auth.Require(ctx, usecase.WriteRole)
	if err != nil {
		return Result{}, err
	}
	return u.Ingest(ctx, id.TenantID, owner, samples)
}

// Ingest merges samples for owner in tenantID without a caller identity.
// It serves trusted pipelines (broker subscriptions, buffer replay) that
// carry the tenant in the message itself.
func (u *Upserter) Ingest(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (Result, error) {
	var res Result
	err := u.uow.Run(ctx, tenantID, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = u.UpsertTx(ctx, tx, owner, samples)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	u.metrics.ConsumptionWritten(string(owner.Kind), res.Inserted, res.Updated)
	logger.FromContext(ctx, u.logger).Info("consumption upserted",
		zap.Int64("tenant_id", int64(tenantID)),
		zap.String("owner", owner.String()),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("chunks", res.Chunks),
	)
	return res, nil
}

// IngestOrBuffer is Ingest, except that a Transient storage failure parks
// the batch in the buffer and reports buffered instead of failing.
func (u *Upserter) IngestOrBuffer(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (Result, bool, error) {
	res, err := u.Ingest(ctx, tenantID, owner, samples)
	if err == nil || u.buffer == nil || !domain.IsRetryable(err) {
		return res, false, err
	}

	log := logger.FromContext(ctx, u.logger)
	log.Warn("storage unavailable, buffering consumption batch",
		zap.String("owner", owner.String()),
		zap.Int("samples", len(samples)),
		zap.Error(err),
	)
	if berr := u.buffer.BufferConsumption(context.WithoutCancel(ctx), tenantID, owner, samples); berr != nil {
		log.Error("buffering consumption batch failed", zap.Error(berr))
		return Result{}, false, err
	}
	return Result{}, true, nil
}

// UpsertTx runs the merge on the caller's transaction. Any failing chunk
// fails the whole call; the caller's rollback discards earlier chunks.
func (u *Upserter) UpsertTx(ctx context.Context, tx repository.Tx, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (Result, error) {
	if err := owner.Validate(); err != nil {
		return Result{}, err
	}
	repo := tx.Consumption()
	exists, err := repo.OwnerExists(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		if owner.Kind == domain.OwnerMeter {
			return Result{}, domain.ErrMeterNotFound
		}
		return Result{}, domain.ErrOperationNotFound
	}

	unique, err := collapse(samples)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for start := 0; start < len(unique); start += u.chunkSize {
		end := start + u.chunkSize
		if end > len(unique) {
			end = len(unique)
		}
		inserted, updated, err := u.mergeChunk(ctx, repo, owner, unique[start:end])
		if err != nil {
			return Result{}, err
		}
		res.Inserted += inserted
		res.Updated += updated
		res.Chunks++
	}
	return res, nil
}

func (u *Upserter) mergeChunk(ctx context.Context, repo repository.ConsumptionRepository, owner domain.ConsumptionOwner, chunk []domain.ConsumptionSample) (int, int, error) {
	started := time.Now()
	defer u.metrics.ObserveChunk(started)

	timestamps := make([]time.Time, len(chunk))
	for i, s := range chunk {
		timestamps[i] = s.Timestamp
	}
	existing, err := repo.FindByTimestamps(ctx, owner, timestamps)
	if err != nil {
		return 0, 0, err
	}
	byTime := make(map[int64]domain.ConsumptionSample, len(existing))
	for _, row := range existing {
		byTime[row.TimeKey()] = row
	}

	rows := make([]domain.ConsumptionSample, len(chunk))
	inserted, updated := 0, 0
	for i, s := range chunk {
		if row, ok := byTime[s.TimeKey()]; ok {
			rows[i] = s.MergeOnto(row)
			updated++
			continue
		}
		s.ID = 0
		rows[i] = s
		inserted++
	}

	if err := repo.SaveBatch(ctx, owner, rows); err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// collapse normalizes timestamps to UTC and merges samples sharing a
// timestamp in input order, so chunk boundaries cannot change the outcome.
func collapse(samples []domain.ConsumptionSample) ([]domain.ConsumptionSample, error) {
	unique := make([]domain.ConsumptionSample, 0, len(samples))
	index := make(map[int64]int, len(samples))
	for _, s := range samples {
		if s.Timestamp.IsZero() {
			return nil, domain.Invalidf("sample without timestamp")
		}
		s.Timestamp = s.Timestamp.UTC().Truncate(domain.TimestampPrecision)
		if i, ok := index[s.TimeKey()]; ok {
			unique[i] = s.MergeOnto(unique[i])
			continue
		}
		index[s.TimeKey()] = len(unique)
		unique = append(unique, s)
	}
	return unique, nil
}
