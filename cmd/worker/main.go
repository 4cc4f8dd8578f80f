package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/bootstrap"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/config"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if app.Queue == nil {
		log.Fatalf("worker requires EVENTS_ENABLED=true")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		app.Logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	timeout := time.Duration(cfg.TransformTimeoutSeconds) * time.Second
	app.Logger.Info("worker subscribed", "subject", cfg.NATSSubjectValidated)
	err = app.Queue.SubscribeValidationCompleted(ctx, func(handlerCtx context.Context, req domain.TransformationRequest) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, timeout)
		defer cancel()
		_, err := app.TransformUC.Transform(runCtx, req)
		return err
	})
	if err != nil {
		app.Logger.Error("worker subscribe error", "error", err)
	}
}
