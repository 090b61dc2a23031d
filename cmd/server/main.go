package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orderproc/order-outbox/internal/broker"
	"github.com/orderproc/order-outbox/internal/config"
	"github.com/orderproc/order-outbox/internal/db"
	"github.com/orderproc/order-outbox/internal/httpapi"
	"github.com/orderproc/order-outbox/internal/service"
	"github.com/orderproc/order-outbox/pkg/infra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("Fatal error preparing schema", "error", err)
		os.Exit(1)
	}

	publisher := broker.NewPublisher(
		cfg.RabbitMQURL,
		infra.RetryPolicy{
			MaxAttempts: cfg.PublishMaxAttempts,
			Backoff:     infra.Exponential(cfg.PublishBackoffBase),
		},
		cfg.PublishConfirmTimeout,
		slog.Default(),
	)

	orderService := service.NewOrderService(store, slog.Default())
	relay := service.NewRelay(store, publisher, cfg.OrdersQueue, cfg.PollInterval, cfg.BatchSize, slog.Default())

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	api := httpapi.NewServer(orderService, slog.Default())
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown error", "error", err)
		}
	}()

	slog.Info("Order outbox service started", "addr", cfg.HTTPAddr, "queue", cfg.OrdersQueue, "pid", os.Getpid())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failure", "error", err)
		stop()
	}

	<-relayDone
	slog.Info("Shutdown complete")
}
