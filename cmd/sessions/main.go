package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sessions/config"
	"sessions/internal/app"
	"sessions/internal/lib/logger/sl"
	"sessions/internal/metrics"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const (
	_shutdownPeriod      = 15 * time.Second
	_shutdownHardPeriod  = 3 * time.Second
	_readinessDrainDelay = 5 * time.Second
)

func main() {
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	log.Info("starting sessions service", slog.String("env", cfg.Env))

	metrics.MustRegister("sessions")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storageApp, err := app.NewStorageApp(cfg.StoragePath)
	if err != nil {
		panic(err)
	}

	application := app.New(log, cfg, storageApp)

	go application.GRPCServer.MustRun()
	go application.MetricsServer.MustRun()

	// Waiting for SIGINT (pkill -2) or SIGTERM
	<-rootCtx.Done()
	stop()

	log.Info("received shutdown signal, shutting down gracefully")

	application.GRPCServer.Drain()
	application.MetricsServer.Drain()

	// Give time for readiness check to propagate
	time.Sleep(_readinessDrainDelay)
	log.Info("readiness check propagated, waiting for ongoing requests to finish")

	timer := time.AfterFunc(_shutdownPeriod, func() {
		log.Error("server couldn't stop gracefully in time, doing force stop")
		application.GRPCServer.ForceStop()
	})
	application.GRPCServer.Stop()
	timer.Stop()

	// Background work started by handlers gets a short grace period of its own.
	done := make(chan struct{})
	go func() {
		application.Manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(_shutdownHardPeriod):
		log.Warn("background tasks still running at shutdown")
	}

	application.Audit.Close()

	metricsCtx, cancel := context.WithTimeout(context.Background(), _shutdownHardPeriod)
	defer cancel()
	if err := application.MetricsServer.Stop(metricsCtx); err != nil {
		log.Error("failed to stop metrics server", sl.Err(err))
	}

	if err := storageApp.Stop(); err != nil {
		log.Error("failed to close storage", sl.Err(err))
	}

	log.Info("server shut down gracefully")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
