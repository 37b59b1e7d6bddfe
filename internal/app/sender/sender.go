// Package sender собирает приложение отправки писем из очередей уведомлений.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/smtp"
	"github.com/magabrotheeeer/quran-entitlements/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/quran-entitlements/internal/services/sender"
)

// App читает очереди уведомлений и отправляет письма.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	queues        []rabbitmq.QueueConfig
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New подключается к брокеру и объявляет очереди.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.Retries, cfg.Delay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	queues := rabbitmq.GetNotificationQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		queues:        queues,
		senderService: senderservice.NewSenderService(transport, logger),
		logger:        logger,
	}, nil
}

// Run запускает потребителей всех очередей и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	for _, q := range a.queues {
		if err := rabbitmq.ConsumeNotifications(ctx, a.logger, a.ch, q, a.senderService.Send); err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			a.close()
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
