// Package scheduler собирает приложение напоминаний об окончании доступа.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/quran-entitlements/internal/cache"
	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	librabbitmq "github.com/magabrotheeeer/quran-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/rabbitmq"
	schedulerservice "github.com/magabrotheeeer/quran-entitlements/internal/services/scheduler"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	interval         time.Duration
	db               *repository.Storage
	cache            *cache.Cache
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{interval: cfg.Interval, logger: logger}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.Retries, cfg.Delay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.conn = conn

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.ch = ch

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	a.db = db

	if err := waitForDB(db); err != nil {
		a.close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}
	a.cache = cacheRedis

	publisher := librabbitmq.NewPublisher(ch, rabbitmq.ExchangeNotifications)
	a.schedulerService = schedulerservice.NewSchedulerService(db, publisher, cacheRedis, cfg.ExpiringWindow, logger)
	return a, nil
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx, a.interval)

	a.logger.Info("shutting down scheduler service")
	a.close()
	return nil
}
