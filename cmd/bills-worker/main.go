package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bills/internal/cli"
	"bills/internal/core"
	applog "bills/internal/log"
	"bills/internal/services"
	"bills/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting bills-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// The server owns the day cache; the worker always reads through to
	// SQLite so it never sees a day older than the event it is handling.
	clock := core.NewClock(cli.Location(logger, cfg))
	billService := services.NewBillService(sqliteRepo, nil, clock, nil)
	eventWorker := worker.NewEventWorker(billService, sqliteRepo, cfg.DigestLookback, cfg.DigestLookahead)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	logger.Info("Running initial bill digest...")
	if err := eventWorker.LogDigest(ctx); err != nil {
		logger.Error("Initial digest failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		defer amqpClient.Close()

		g.Go(func() error {
			err := amqpClient.Consume(gctx, eventWorker.HandleBillEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("Skipping AMQP message consumption - digest only")
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.DigestInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if err := eventWorker.LogDigest(gctx); err != nil {
					logger.Error("Periodic digest failed", "error", err)
					continue
				}
				logger.Debug("Next digest scheduled", "at", now.Add(cfg.DigestInterval).Format("15:04:05"))
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Bills-worker shutdown complete")
}
