package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/buffer"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/usecase/consumption"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// Ingester writes a batch for an explicit tenant. *consumption.Upserter
// satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (consumption.Result, error)
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Schedule        string
	CleanupSchedule string
	BatchSize       int
	MaxRetries      int
	MaxAge          time.Duration
	Timeout         time.Duration
}

// BufferProcessor replays parked consumption batches once primary storage
// is reachable again.
type BufferProcessor struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	ingester Ingester
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	ingester Ingester,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg ProcessorConfig,
) (*BufferProcessor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30s"
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "@hourly"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:    store,
		monitor:  monitor,
		ingester: ingester,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(),
	}

	if _, err := bp.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("drain schedule %q: %w", cfg.Schedule, err)
	}

	if cfg.MaxAge > 0 {
		if _, err := bp.cron.AddFunc(cfg.CleanupSchedule, func() {
			if _, err := bp.Cleanup(time.Now()); err != nil {
				bp.logger.Error("buffer cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
	}

	return bp, nil
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.String("schedule", bp.cfg.Schedule))
}

// Stop waits for a running drain to finish or ctx to expire.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// Drain replays one batch of parked items. A transient failure stops the
// pass early since the rest of the batch would fail the same way; any other
// failure moves the item to the dead-letter bucket at once.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return nil
	}
	defer bp.publishSize()

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := bp.ingester.Ingest(ctx, item.TenantID, item.Owner, item.Samples)
		if err == nil {
			if err := bp.store.Remove(item); err != nil {
				bp.logger.Warn("failed to purge replayed buffer item", zap.String("item_id", item.ID), zap.Error(err))
			}
			bp.logger.Debug("buffer item replayed",
				zap.String("item_id", item.ID),
				zap.Int("rows", res.Rows()))
			continue
		}

		log := bp.logger.With(
			zap.String("item_id", item.ID),
			zap.String("owner", item.Owner.String()),
			zap.Int("retries", item.Retries),
			zap.Error(err))

		if !domain.IsRetryable(err) || item.Retries+1 >= bp.cfg.MaxRetries {
			log.Warn("dead-lettering buffer item")
			if dlErr := bp.store.DeadLetter(item, err); dlErr != nil {
				log.Error("failed to dead-letter buffer item", zap.NamedError("dead_letter_error", dlErr))
			}
			continue
		}

		log.Info("requeueing buffer item")
		if rqErr := bp.store.Requeue(item, err); rqErr != nil {
			log.Error("failed to requeue buffer item", zap.NamedError("requeue_error", rqErr))
		}
		return nil
	}
	return nil
}

// BufferBatch persists a batch for later replay.
func (bp *BufferProcessor) BufferBatch(_ context.Context, item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("buffer processor not configured")
	}
	if err := bp.store.Enqueue(item); err != nil {
		return err
	}
	bp.publishSize()
	return nil
}

// Cleanup drops queued items older than MaxAge relative to now.
func (bp *BufferProcessor) Cleanup(now time.Time) (int, error) {
	if bp == nil || bp.store == nil || bp.cfg.MaxAge <= 0 {
		return 0, nil
	}
	removed, err := bp.store.Cleanup(now.Add(-bp.cfg.MaxAge))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		bp.logger.Warn("expired buffer items dropped", zap.Int("removed", removed))
		bp.publishSize()
	}
	return removed, nil
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) publishSize() {
	bp.metrics.SetBuffered(bp.Size())
}
