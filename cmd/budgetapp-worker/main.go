package main

import (
	"context"
	"os"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/cli"
	"budgetapp/internal/export"
	"budgetapp/internal/log"
	gsheet "budgetapp/internal/sheets/google"
	"budgetapp/internal/sheets/memory"
	"budgetapp/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP broker", log.FieldError, err.Error())
		os.Exit(1)
	}

	var sinks []export.Sink
	if cfg.GoogleSpreadsheetID != "" {
		sheetsClient, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleSheetName,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
			os.Exit(1)
		}
		if err := sheetsClient.HealthCheck(ctx); err != nil {
			logger.Warn("Spreadsheet not reachable yet", log.FieldError, err.Error())
		}
		sinks = append(sinks, export.NewSheetSink(sheetsClient))
	} else {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, exported rows are kept in memory only")
		sinks = append(sinks, export.NewSheetSink(memory.New()))
	}

	be := cli.MustOpenBackend(ctx, logger, cfg)
	sinks = append(sinks, export.NewBlobSink(be.Store))

	w := worker.NewExportWorker(logger, cfg.ExportTimeout, sinks...)

	runCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	logger.Info("Starting export worker",
		"queue", cfg.AMQPQueue,
		log.FieldBackend, cfg.DataBackend,
		"sinks", len(sinks))
	if err := w.Run(runCtx, client); err != nil && runCtx.Err() == nil {
		logger.Error("Export worker stopped", log.FieldError, err.Error())
		_ = client.Close()
		_ = be.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	if err := client.Close(); err != nil {
		logger.Warn("AMQP close error", log.FieldError, err.Error())
	}
	if err := be.Close(); err != nil {
		logger.Warn("Storage close error", log.FieldError, err.Error())
	}
	logger.Info("Export worker stopped gracefully")
}
