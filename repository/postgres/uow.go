package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type txKey struct{}

type activeTx struct {
	tenant domain.TenantID
	store  *store
}

// UnitOfWork runs business operations inside one pgx transaction.
type UnitOfWork struct {
	db      TxStarter
	opts    pgx.TxOptions
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewUnitOfWork creates a unit of work; an empty isolation level defaults
// to REPEATABLE READ.
func NewUnitOfWork(db TxStarter, iso pgx.TxIsoLevel, logger *zap.Logger, m *metrics.Metrics) *UnitOfWork {
	if logger == nil {
		logger = zap.NewNop()
	}
	if iso == "" {
		iso = pgx.RepeatableRead
	}
	return &UnitOfWork{
		db:      db,
		opts:    pgx.TxOptions{IsoLevel: iso},
		logger:  logger,
		metrics: m,
	}
}

// Run commits when fn returns nil and rolls back on error or panic. The
// rollback runs on a context detached from ctx's cancellation so an
// abandoned request still ends in a full rollback. A Run nested in fn's
// context joins the outer transaction.
func (u *UnitOfWork) Run(ctx context.Context, tenant domain.TenantID, fn repository.TxFunc) (err error) {
	if outer, ok := ctx.Value(txKey{}).(*activeTx); ok {
		if outer.tenant != tenant {
			return domain.WrapError(domain.ErrCodeForbidden, "nested unit of work crosses communities", nil)
		}
		return fn(ctx, outer.store)
	}

	if !tenant.Valid() {
		return domain.ErrNotAuthorized
	}

	started := time.Now()
	log := logger.FromContext(ctx, u.logger)

	tx, err := u.db.BeginTx(ctx, u.opts)
	if err != nil {
		u.metrics.ObserveUnitOfWork("begin_failed", started)
		return translate(fmt.Errorf("begin transaction: %w", err))
	}

	scope, err := NewScope(tx, tenant)
	if err != nil {
		u.rollback(ctx, tx, log)
		return err
	}
	state := &activeTx{tenant: tenant, store: newStore(scope)}

	finished := false
	defer func() {
		if finished {
			return
		}
		u.rollback(ctx, tx, log)
		u.metrics.ObserveUnitOfWork("rollback", started)
		if p := recover(); p != nil {
			log.Error("unit of work panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, state), state.store); err != nil {
		log.Debug("unit of work failed, rolling back", zap.Error(err))
		return translate(err)
	}

	finished = true
	if err := tx.Commit(ctx); err != nil {
		u.metrics.ObserveUnitOfWork("commit_failed", started)
		return translate(fmt.Errorf("commit: %w", err))
	}
	u.metrics.ObserveUnitOfWork("commit", started)
	return nil
}

func (u *UnitOfWork) rollback(ctx context.Context, tx pgx.Tx, log *zap.Logger) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := tx.Rollback(rollbackCtx); err != nil && err != pgx.ErrTxClosed {
		log.Warn("rollback failed", zap.Error(err))
	}
}

var _ repository.UnitOfWork = (*UnitOfWork)(nil)
