package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/budget"
	"budgetapp/internal/cache"
	"budgetapp/internal/cli"
	"budgetapp/internal/config"
	"budgetapp/internal/core"
	"budgetapp/internal/export"
	apphttp "budgetapp/internal/http"
	"budgetapp/internal/log"
	"budgetapp/internal/scheduler"
	"budgetapp/internal/storage"

	"github.com/google/uuid"
)

const (
	summaryCacheSize = 256
	requestsPerMin   = 120
	shutdownTimeout  = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx := context.Background()
	be := cli.MustOpenBackend(ctx, logger, cfg)
	gateway := storage.NewGateway(be.Store, logger)

	engineOpts := []budget.Option{budget.WithLogger(logger)}
	var sinks []export.Sink

	var broker *amqp.Client
	if cfg.AMQPEnabled() {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without change events",
				log.FieldComponent, log.ComponentAMQP, log.FieldError, err.Error())
		} else {
			broker = c
			engineOpts = append(engineOpts, budget.WithNotifier(amqp.NewChangeNotifier(c)))
			sinks = append(sinks, amqp.NewExportSink(c))
		}
	}
	// CSV copies of exported months live next to the state blob.
	sinks = append(sinks, export.NewBlobSink(be.Store))

	engine := budget.NewEngine(gateway, engineOpts...)
	engine.Load(ctx)

	summaries := cache.NewSummaries(summaryCacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	if c := summaries.Cleaner(); c != nil {
		cacheManager.Register(c)
		cacheManager.StartCleanup(cfg.CacheTTL)
	}

	opts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithSummaryCache(summaries),
		apphttp.WithExportSinks(cfg.ExportTimeout, sinks...),
		apphttp.WithRateLimit(requestsPerMin),
	}
	if be.Health != nil {
		opts = append(opts, apphttp.WithReadyCheck(cfg.DataBackend, apphttp.ReadyCheck(be.Health)))
	}
	srv := apphttp.NewServer(":"+cfg.Port, engine, opts...)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	var rollover *scheduler.Rollover
	if cfg.RolloverEnabled {
		exportMonth := func(ctx context.Context, month core.MonthKey) error {
			state, _ := engine.State()
			batch := export.Batch{ID: uuid.NewString(), Month: month, Rows: export.Rows(state, month, core.AllAccounts())}
			return export.Fanout(ctx, batch, sinks...)
		}
		r, err := scheduler.NewRollover(engine, cfg.RolloverSchedule,
			scheduler.WithLogger(logger),
			scheduler.WithExport(exportMonth, cfg.ExportTimeout))
		if err != nil {
			logger.Error("Invalid rollover schedule", log.FieldError, err.Error())
			os.Exit(1)
		}
		if err := r.Start(ctx); err != nil {
			logger.Error("Failed to start rollover scheduler", log.FieldError, err.Error())
			os.Exit(1)
		}
		rollover = r
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if rollover != nil {
			rollover.Stop()
		}
		cacheManager.Stop()
		if broker != nil {
			_ = broker.Close()
		}
		if err := be.Close(); err != nil {
			logger.Error("Storage close error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting budget server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"amqp", broker != nil,
		"rollover", rollover != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
