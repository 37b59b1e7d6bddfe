package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/metrics"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// maxInFlight совпадает с prefetch канала в SetupChannel.
const maxInFlight = 10

// ErrUnprocessable уведомление не удастся обработать и при повторе: оно
// отбрасывается, а не возвращается в очередь.
var ErrUnprocessable = errors.New("notification cannot be processed")

// Handler обрабатывает тело уведомления типа kind.
type Handler func(kind models.NotificationKind, body []byte) error

// ConsumeNotifications читает очередь q и передаёт каждое уведомление в
// handle, параллельно не более чем maxInFlight. Успех подтверждается,
// ErrUnprocessable отбрасывает уведомление, любая другая ошибка возвращает
// его в очередь.
func ConsumeNotifications(ctx context.Context, log *slog.Logger, ch *amqp.Channel, q QueueConfig, handle Handler) error {
	const op = "rabbitmq.ConsumeNotifications"
	delivery, err := ch.Consume(
		q.QueueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(
		slog.String("op", op),
		slog.String("queue", q.QueueName),
		slog.String("kind", string(q.Kind())),
	)
	log.Info("consuming notifications")

	sem := make(chan struct{}, maxInFlight)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					log.Warn("delivery channel closed")
					return
				}
				sem <- struct{}{}
				go func(d amqp.Delivery) {
					defer func() { <-sem }()
					settle(log, q.Kind(), d, handle(q.Kind(), d.Body))
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// settle подтверждает или отклоняет доставку по результату обработки.
func settle(log *slog.Logger, kind models.NotificationKind, d amqp.Delivery, err error) {
	log = log.With(
		slog.Uint64("delivery_tag", d.DeliveryTag),
		slog.Bool("redelivered", d.Redelivered),
	)
	if err == nil {
		metrics.Notifications.WithLabelValues(string(kind), "sent").Inc()
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack notification", sl.Err(ackErr))
		}
		return
	}

	retry := !errors.Is(err, ErrUnprocessable)
	if retry {
		metrics.Notifications.WithLabelValues(string(kind), "requeued").Inc()
		log.Warn("notification failed, requeued", sl.Err(err))
	} else {
		metrics.Notifications.WithLabelValues(string(kind), "dropped").Inc()
		log.Error("notification dropped", sl.Err(err))
	}
	if nackErr := d.Nack(false, retry); nackErr != nil {
		log.Error("failed to nack notification", sl.Err(nackErr))
	}
}
