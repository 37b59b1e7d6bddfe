// Package entitlements собирает HTTP-приложение проверки и выдачи доступа.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/quran-entitlements/internal/billing"
	"github.com/magabrotheeeer/quran-entitlements/internal/cache"
	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/jwt"
	librabbitmq "github.com/magabrotheeeer/quran-entitlements/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/migrations"
	"github.com/magabrotheeeer/quran-entitlements/internal/rabbitmq"
	entitlementservice "github.com/magabrotheeeer/quran-entitlements/internal/services/entitlement"
	grantservice "github.com/magabrotheeeer/quran-entitlements/internal/services/grant"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/identity"
	"github.com/magabrotheeeer/quran-entitlements/internal/services/notify"
	paymentservice "github.com/magabrotheeeer/quran-entitlements/internal/services/payment"
	voucherservice "github.com/magabrotheeeer/quran-entitlements/internal/services/voucher"
	"github.com/magabrotheeeer/quran-entitlements/internal/storage/repository"
)

// App HTTP-сервер и его ресурсы.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилище, кэш и брокер и собирает сервисы.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	app := &App{
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}

	var notifier grantservice.Notifier = notify.Nop{}
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.Retries, cfg.Delay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.conn = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		app.ch = ch
		notifier = notify.New(librabbitmq.NewPublisher(ch, rabbitmq.ExchangeNotifications), logger)
	} else {
		logger.Warn("rabbitmq url is empty, notifications are disabled")
	}

	resolver := identity.New(db, cfg.AdminEmails, logger)

	var reconciler entitlementservice.Reconciler
	if cfg.Billing.APIURL != "" {
		client := billing.NewClient(cfg.Billing.APIURL, cfg.Billing.APIKey, cfg.Billing.APITimeout)
		reconciler = paymentservice.NewReconciler(db, client, cacheRedis, cfg.FallbackCooldown, logger)
	} else {
		logger.Warn("billing api url is empty, processor fallback is disabled")
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Tokens:      jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.Issuer, cfg.TokenTTL),
		Identity:    resolver,
		Entitlement: entitlementservice.New(resolver, db, reconciler, logger),
		Grant:       grantservice.New(db, resolver, cfg.AdminEmails, notifier, logger),
		Voucher:     voucherservice.New(db, resolver, cacheRedis, logger),
		Webhook:     paymentservice.NewWebhookService(db, resolver, notifier, cfg.WebhookSecret, cfg.SignatureTolerance, logger),
		DB:          db.DB,
		RedeemRPS:   cfg.RedeemRPS,
		RedeemBurst: cfg.RedeemBurst,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx.
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
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
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
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
