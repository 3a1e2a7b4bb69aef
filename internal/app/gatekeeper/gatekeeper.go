// Package gatekeeper собирает HTTP-сервис движка доступа: хранилище,
// миграции, Redis (кеш и блокировки), RabbitMQ, метрики, сервисы и маршруты.
package gatekeeper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/access-gatekeeper/internal/cache"
	"github.com/magabrotheeeer/access-gatekeeper/internal/config"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/jwt"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/access-gatekeeper/internal/locker"
	"github.com/magabrotheeeer/access-gatekeeper/internal/metrics"
	"github.com/magabrotheeeer/access-gatekeeper/internal/migrations"
	"github.com/magabrotheeeer/access-gatekeeper/internal/provisioner"
	accessservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/access"
	auditservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/audit"
	lifecycleservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/lifecycle"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/webhookgate"
	"github.com/magabrotheeeer/access-gatekeeper/internal/storage"
)

type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *storage.Storage
	amqpConn *amqp.Connection
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.Connect(cfg.RabbitConnectionString, 5, 3*time.Second)
	if err != nil {
		return nil, err
	}
	amqpChannel, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetLifecycleQueues())
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(amqpChannel)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	clk := clock.System()
	locks := locker.NewRedisLocker(cacheRedis.Db, cfg.Locking.AcquireTimeout, cfg.Locking.LockTTL)
	tokens := jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	providerClient := provisioner.NewClient(cfg.Provisioner, logger)

	auditRecorder := auditservice.NewRecorder(db, clk, logger)
	accessService := accessservice.NewService(db, cacheRedis, collector, clk, logger)
	gate := webhookgate.New(db, collector, auditRecorder, clk, cfg.Webhook.RetentionWindow, logger)
	lifecycleService := lifecycleservice.NewService(db, locks, providerClient,
		auditRecorder, publisher, collector, clk, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, &RouteDeps{
		Storage:   db,
		Access:    accessService,
		Lifecycle: lifecycleService,
		Gate:      gate,
		Auditor:   auditRecorder,
		Tokens:    tokens,
		Registry:  registry,
		Secret:    cfg.Webhook.Secret,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.amqpConn.Close()
		_ = a.db.DB.Close()
		return err
	}
}
