package main

import (
	"context"
	"os"
	"time"

	"savetrack/internal/cli"
	"savetrack/internal/log"
	"savetrack/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentOutbox)
	logger.Info("Starting savetrack-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required to relay events")
		return 1
	}

	res := cli.InitStore(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	client, err := cli.InitPublisher(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		return 1
	}
	defer client.Close()

	processorCfg := services.DefaultOutboxProcessorConfig()
	processorCfg.PollInterval = cfg.OutboxInterval
	processorCfg.BatchSize = cfg.OutboxBatchSize
	processorCfg.MaxRetries = cfg.OutboxMaxRetries
	processorCfg.CleanupAge = cfg.OutboxCleanupAge
	processor := services.NewOutboxProcessor(res.Store, client, processorCfg, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop outbox processor", log.FieldError, err)
		}
	})

	// Drain anything committed while the worker was down before polling.
	if n, err := processor.ProcessOnce(ctx); err != nil {
		logger.Error("Startup drain failed", log.FieldError, err)
	} else if n > 0 {
		logger.Info("Startup drain published events", "count", n)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start outbox processor", log.FieldError, err)
		return 1
	}

	cli.WaitForShutdown(ctx, done)
	return 0
}
