package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-catalog/internal/config"
	"product-catalog/internal/notifications"
	"product-catalog/internal/products"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
)

var errDeliveriesClosed = errors.New("delivery channel closed by broker")

type listener interface {
	Listen(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	os.Exit(run(logger))
}

func run(logger *slog.Logger) int {
	cfg, err := config.LoadNotifications()
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("connect rabbitmq", "error", err)
		return 1
	}
	defer conn.Close()

	consumer, err := notifications.NewConsumer(conn, products.EventsQueue, logger, notifications.Options{
		ExpiringSoonDays: cfg.ExpiringSoonDays,
		Location:         cfg.DisplayLocation,
	})
	if err != nil {
		logger.Error("init consumer", "error", err)
		return 1
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("expiry notifications started",
		"queue", products.EventsQueue,
		"expiring_soon_days", cfg.ExpiringSoonDays,
		"timezone", cfg.DisplayLocation.String(),
	)
	if err := listenUntilStopped(ctx, consumer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("consumer failed", "error", err)
		return 1
	}

	logger.Info("notifications service stopped")
	return 0
}

// listenUntilStopped runs l until ctx is cancelled, then waits at most grace
// for it to return. A listener that returns before cancellation lost its
// deliveries, which is reported as an error.
func listenUntilStopped(ctx context.Context, l listener, grace time.Duration, logger *slog.Logger) error {
	done := make(chan error, 1)
	go func() {
		done <- l.Listen(ctx)
	}()

	select {
	case err := <-done:
		if err == nil && ctx.Err() == nil {
			return errDeliveriesClosed
		}
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		logger.Warn("consumer shutdown timeout reached", "grace", grace)
		return nil
	}
}
