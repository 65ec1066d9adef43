package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/OptimCE/crm-backend-sub001/api/handler"
	"github.com/OptimCE/crm-backend-sub001/internal/app"
	"github.com/OptimCE/crm-backend-sub001/internal/config"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/buffer"
	"github.com/OptimCE/crm-backend-sub001/internal/infrastructure/monitor"
	pgInfra "github.com/OptimCE/crm-backend-sub001/internal/infrastructure/postgres"
	"github.com/OptimCE/crm-backend-sub001/internal/ingest"
	"github.com/OptimCE/crm-backend-sub001/internal/router"
	"github.com/OptimCE/crm-backend-sub001/internal/services"
	"github.com/OptimCE/crm-backend-sub001/internal/services/lifecycle"
	"github.com/OptimCE/crm-backend-sub001/pkg/httpcontext"
	"github.com/OptimCE/crm-backend-sub001/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	engine, err := app.New(appCtx, cfg, zapLogger, nil)
	if err != nil {
		zapLogger.Fatal("engine startup failed", zap.Error(err))
	}
	manager.Register("storage", func(context.Context) error {
		engine.Close()
		return nil
	})

	var (
		bufferStore     *buffer.Store
		bufferSizer     monitor.BufferSizer
		bufferProcessor *services.BufferProcessor
	)
	if cfg.Buffer.Enabled {
		bufferStore, err = buffer.Open(cfg.Buffer.Path, "consumption", cfg.Buffer.MaxSize)
		if err != nil {
			zapLogger.Fatal("failed to open buffer store", zap.Error(err))
		}
		bufferSizer = bufferStore
		manager.Register("buffer", func(context.Context) error {
			return bufferStore.Close()
		})
	}

	mon := monitor.New(engine.PingPostgres, engine.PingRedis, bufferSizer, engine.Metrics, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(context.Context) error {
		mon.Stop()
		return nil
	})

	if bufferStore != nil {
		bufferProcessor, err = services.NewBufferProcessor(
			bufferStore,
			mon,
			engine.Consumption,
			engine.Metrics,
			zapLogger,
			services.ProcessorConfig{
				Schedule:   cfg.Buffer.DrainSchedule,
				BatchSize:  cfg.Buffer.DrainBatch,
				MaxRetries: cfg.Buffer.MaxRetry,
				MaxAge:     cfg.Buffer.MaxAge,
				Timeout:    cfg.Context.RequestTimeout,
			},
		)
		if err != nil {
			zapLogger.Fatal("buffer processor setup failed", zap.Error(err))
		}
		bufferProcessor.Start()
		manager.Register("buffer_processor", func(ctx context.Context) error {
			bufferProcessor.Stop(ctx)
			return nil
		})

		if err := engine.UseBuffer(services.NewBufferBridge(bufferProcessor, buffer.SourceMQTT)); err != nil {
			zapLogger.Fatal("upserter setup failed", zap.Error(err))
		}
	}

	if cfg.MQTT.Enabled {
		subscriber := ingest.NewSubscriber(cfg.MQTT, engine.Consumption, engine.Directory, engine.Metrics, cfg.Context.RequestTimeout, zapLogger)
		manager.Go("mqtt", subscriber.Run)
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout).WithBase(appCtx)
	handlers := router.Handlers{
		Health: apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = apiHandler.NewMetricsHandler(engine.Metrics.Registry())
	}
	r := router.New(handlers)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}
	manager.Go("http_server", func(ctx context.Context) error {
		zapLogger.Info("ops server started", zap.String("address", cfg.Address()))
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe(cfg.Address()) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return server.ShutdownWithContext(context.WithoutCancel(ctx))
		}
	})

	if err := manager.Run(appCtx); err != nil {
		zapLogger.Error("engine stopped with error", zap.Error(err))
	}
}
