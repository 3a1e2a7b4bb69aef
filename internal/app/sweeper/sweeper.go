// Package sweeper собирает фоновый сервис плановых проходов: истечение
// пробных периодов, уведомления и чистку по окнам удержания.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/access-gatekeeper/internal/cache"
	"github.com/magabrotheeeer/access-gatekeeper/internal/config"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/clock"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/access-gatekeeper/internal/locker"
	"github.com/magabrotheeeer/access-gatekeeper/internal/metrics"
	"github.com/magabrotheeeer/access-gatekeeper/internal/provisioner"
	auditservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/audit"
	lifecycleservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/lifecycle"
	sweeperservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/sweeper"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/webhookgate"
	"github.com/magabrotheeeer/access-gatekeeper/internal/storage"
)

// App представляет приложение фоновых проходов.
type App struct {
	sweeperService *sweeperservice.Service
	conn           *amqp.Connection
	ch             *amqp.Channel
	db             *storage.Storage
	logger         *slog.Logger
}

func waitForDB(ctx context.Context, db *storage.Storage) error {
	for range 10 {
		if err := db.CheckDatabaseReady(ctx); err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения фоновых проходов.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitConnectionString, 5, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetLifecycleQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	publisher := rabbitmq.NewPublisher(ch)

	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	clk := clock.System()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	locks := locker.NewRedisLocker(cacheRedis.Db, cfg.Locking.AcquireTimeout, cfg.Locking.LockTTL)
	providerClient := provisioner.NewClient(cfg.Provisioner, logger)
	auditRecorder := auditservice.NewRecorder(db, clk, logger)
	gate := webhookgate.New(db, collector, auditRecorder, clk, cfg.Webhook.RetentionWindow, logger)
	lifecycleService := lifecycleservice.NewService(db, locks, providerClient,
		auditRecorder, publisher, collector, clk, logger)

	sweeperService := sweeperservice.NewService(db, lifecycleService, gate,
		auditRecorder, publisher, clk, logger,
		cfg.ExpireInterval, cfg.RetentionInterval, cfg.AuditRetention)

	return &App{
		sweeperService: sweeperService,
		conn:           conn,
		ch:             ch,
		db:             db,
		logger:         logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает фоновые проходы до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	go a.sweeperService.RunExpiry(ctx)
	go a.sweeperService.RunRetention(ctx)

	<-ctx.Done()

	a.logger.Info("shutting down sweeper service")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", slog.Any("err", err))
	}
	return nil
}
