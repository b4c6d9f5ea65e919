package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-catalog/internal/config"
	"product-catalog/internal/forecast"
	"product-catalog/internal/products"
	"product-catalog/internal/products/cache"
	producthttp "product-catalog/internal/products/http"
	"product-catalog/internal/products/importer"
	"product-catalog/internal/products/messaging"
	"product-catalog/internal/products/repository"
	"product-catalog/internal/products/service"

	_ "product-catalog/docs"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const (
	metricCreatedTotal    = "products_created_total"
	metricUpdatedTotal    = "products_updated_total"
	metricDeletedTotal    = "products_deleted_total"
	metricImportRowsTotal = "products_import_rows_total"
	migrateSourcePrefix   = "file://"
	postgresDriverName    = "postgres"
	cacheKeyPrefix        = "catalog:"
	hoursPerDay           = 24
)

// @title        Product Catalog API
// @version      1.0
// @description  Inventory catalog with CSV import, dashboard aggregates and demand forecasts.
// @host         localhost:8080
// @BasePath     /
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadProducts()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := runMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open(postgresDriverName, cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.DBPingTimeout)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("ping database", "error", err)
		os.Exit(1)
	}

	rabbitConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("connect rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()

	publisher, err := messaging.NewRabbitPublisher(rabbitConn, products.EventsQueue)
	if err != nil {
		logger.Error("init publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	metrics := service.Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricCreatedTotal,
			Help: "Total number of products created",
		}),
		Updated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricUpdatedTotal,
			Help: "Total number of products updated",
		}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricDeletedTotal,
			Help: "Total number of products deleted",
		}),
	}
	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricImportRowsTotal,
		Help: "CSV import rows by result",
	}, []string{"result"})
	prometheus.MustRegister(metrics.Created, metrics.Updated, metrics.Deleted, importRows)

	store := repository.NewPostgres(db)
	checkers := []producthttp.HealthChecker{store}

	var repo service.Repository = store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		redisStore := cache.NewRedisStore(redisClient, cacheKeyPrefix, cfg.RedisCacheTTL)
		repo = cache.NewRepository(store, redisStore, logger)
		checkers = append(checkers, redisStore)
		logger.Info("product cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisCacheTTL)
	}

	svc := service.New(repo, publisher, logger, metrics, service.Config{
		ExpirationCutoff:   cfg.ExpirationCutoff,
		ExpiringSoonWindow: hoursPerDay * time.Hour * time.Duration(cfg.ExpiringSoonDays),
		Location:           cfg.DisplayLocation,
	})
	imp := importer.New(svc, publisher, logger, importRows)

	var forecasts producthttp.ForecastService
	if cfg.ForecastURL != "" {
		forecasts = forecast.NewService(svc, forecast.NewClient(cfg.ForecastURL, cfg.ForecastTimeout))
	} else {
		logger.Warn("FORECAST_URL not set, forecast routes disabled")
	}

	handler := producthttp.NewHandler(svc, imp, forecasts, logger, producthttp.Options{
		Location:       cfg.DisplayLocation,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(producthttp.RequestIDMiddleware())
	router.Use(producthttp.AccessLogMiddleware(logger))
	router.Use(producthttp.NewHTTPMetrics(prometheus.DefaultRegisterer).Middleware())
	router.Use(producthttp.CORSMiddleware(cfg.CORSAllowedOrigins))
	producthttp.RegisterRoutes(router, handler, checkers...)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("products service started", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("products service stopped")
}

func runMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New(migrateSourcePrefix+migrationsPath, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
