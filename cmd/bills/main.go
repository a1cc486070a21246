package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bills/internal/cache"
	"bills/internal/cli"
	"bills/internal/core"
	apphttp "bills/internal/http"
	applog "bills/internal/log"
	"bills/internal/notify"
	"bills/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(applog.ComponentApp)
	logger.Info("Starting bills server")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// Day views are cached in front of SQLite; the janitor drops expired days.
	dayCache := cache.NewLRU[core.Date, []core.Bill](cfg.CacheSize, cfg.CacheTTL)
	janitor := cache.NewJanitor()
	janitor.Register(dayCache)
	janitor.Start(cfg.CacheTTL)
	defer janitor.Stop()

	hub := notify.NewHub()
	sinks := []services.Sink{{Name: "websocket", Publisher: hub}}
	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		sinks = append(sinks, services.Sink{Name: "amqp", Publisher: amqpClient})
	}
	publisher := services.NewMultiPublisher(sinks...)

	clock := core.NewClock(cli.Location(logger, cfg))
	billService := services.NewBillService(sqliteRepo, dayCache, clock, publisher)
	defer func() {
		if err := billService.Close(); err != nil {
			logger.Error("Error closing bill service", "error", err)
		}
	}()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Notifier:           hub,
	}, billService)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening",
			"port", cfg.Port,
			"sqlite_db", cfg.SQLiteDBPath,
			"timezone", clock.Location.String(),
			"today", billService.Today(),
			"sinks", publisher.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := cli.ShutdownContext(30 * time.Second)
		defer shutdownCancel()

		logger.Info("Shutting down HTTP server...", applog.FieldOperation, applog.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
