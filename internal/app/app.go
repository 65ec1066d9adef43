package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/internal/config"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	pgInfra "github.com/OptimCE/crm-backend-sub001/internal/infrastructure/postgres"
	redisInfra "github.com/OptimCE/crm-backend-sub001/internal/infrastructure/redis"
	"github.com/OptimCE/crm-backend-sub001/internal/tenant"
	"github.com/OptimCE/crm-backend-sub001/repository"
	"github.com/OptimCE/crm-backend-sub001/repository/postgres"
	redisRepo "github.com/OptimCE/crm-backend-sub001/repository/redis"
	"github.com/OptimCE/crm-backend-sub001/usecase"
	"github.com/OptimCE/crm-backend-sub001/usecase/consumption"
	"github.com/OptimCE/crm-backend-sub001/usecase/meter"
	"github.com/OptimCE/crm-backend-sub001/usecase/sharing"
)

// App holds the storage and use cases shared by the server and the
// operator CLI.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Location   *time.Location
	Pool       *pgxpool.Pool
	Redis      *goRedis.Client
	Directory  repository.Directory
	Resolver   *tenant.Resolver
	UnitOfWork *postgres.UnitOfWork

	Meters      *meter.UseCase
	Sharing     *sharing.UseCase
	Consumption *consumption.Upserter
}

// New connects to Postgres (and Redis when configured) and builds the use
// cases. buf may be nil; the upserter then never parks batches.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, buf usecase.ConsumptionBuffer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := pgInfra.NewPool(ctx, cfg.Database, cfg.Engine, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.New(),
		Location: loc,
		Pool:     pool,
	}

	a.Directory = postgres.NewDirectory(pool)
	client, err := redisInfra.NewClient(ctx, cfg.Redis, logger)
	switch {
	case err == nil:
		a.Redis = client
		a.Directory = redisRepo.NewCachedDirectory(a.Directory, client, cfg.Identity.CacheTTL, logger)
	case errors.Is(err, redisInfra.ErrNotConfigured):
		logger.Info("redis not configured, identity cache is in-process only")
	default:
		logger.Warn("redis unavailable, identity cache is in-process only", zap.Error(err))
	}

	a.Resolver, err = tenant.NewResolver(a.Directory, cfg.Identity.CacheSize, cfg.Identity.CacheTTL, a.Metrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.UnitOfWork = postgres.NewUnitOfWork(pool, pgInfra.IsolationLevel(cfg.Engine.IsolationLevel), logger, a.Metrics)
	a.Meters = meter.New(a.UnitOfWork, a.Resolver, loc, logger)
	a.Sharing = sharing.New(a.UnitOfWork, a.Resolver, loc, a.Metrics, logger)
	a.Consumption, err = consumption.New(a.UnitOfWork, a.Resolver, cfg.Engine.UpsertChunkSize, buf, a.Metrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// UseBuffer plugs a buffer into the upserter once the buffer processor,
// which itself needs the upserter, exists.
func (a *App) UseBuffer(buf usecase.ConsumptionBuffer) error {
	upserter, err := consumption.New(a.UnitOfWork, a.Resolver, a.Config.Engine.UpsertChunkSize, buf, a.Metrics, a.Logger)
	if err != nil {
		return err
	}
	a.Consumption = upserter
	return nil
}

// PingPostgres and PingRedis are monitor checks.
func (a *App) PingPostgres(ctx context.Context) error {
	return pgInfra.Ping(ctx, a.Pool, 5*time.Second)
}

func (a *App) PingRedis(ctx context.Context) error {
	return redisInfra.Ping(ctx, a.Redis)
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis failed", zap.Error(err))
		}
	}
	pgInfra.Close(a.Pool, a.Logger)
}
