package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/internal/config"
)

const applicationName = "allocation-engine"

// NewPool opens the engine's connection pool. Sessions run in the engine
// time zone so that date columns and day boundaries agree with Today().
func NewPool(ctx context.Context, cfg config.DatabaseConfig, engine config.EngineConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	params := pgxCfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	if engine.TimeZone != "" {
		params["timezone"] = engine.TimeZone
	}
	params["default_transaction_isolation"] = isolationParam(IsolationLevel(engine.IsolationLevel))

	if cfg.MaxOpenConns > 0 {
		pgxCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pgxCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxConnLifetime > 0 {
		pgxCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, err
	}
	if err := Ping(ctx, pool, 5*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres",
		zap.String("host", pgxCfg.ConnConfig.Host),
		zap.String("db", pgxCfg.ConnConfig.Database),
		zap.String("timezone", params["timezone"]),
		zap.String("isolation", params["default_transaction_isolation"]),
		zap.Int32("max_conns", pgxCfg.MaxConns),
	)
	return pool, nil
}

// Ping is the monitor check for the pool.
func Ping(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is not open")
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return pool.Ping(pingCtx)
}

// IsolationLevel maps the configured level name onto pgx. Unknown names
// fall back to REPEATABLE READ.
func IsolationLevel(name string) pgx.TxIsoLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "read committed":
		return pgx.ReadCommitted
	case "serializable":
		return pgx.Serializable
	default:
		return pgx.RepeatableRead
	}
}

func isolationParam(level pgx.TxIsoLevel) string {
	return strings.ToLower(string(level))
}

// Close releases the pool and logs the result.
func Close(pool *pgxpool.Pool, logger *zap.Logger) {
	if pool == nil {
		return
	}
	pool.Close()
	if logger != nil {
		logger.Info("postgres pool closed")
	}
}
