package rabbitmq

import "github.com/magabrotheeeer/quran-entitlements/internal/models"

// ExchangeNotifications direct exchange уведомлений; routing key совпадает с
// models.NotificationKind.
const ExchangeNotifications = "notifications"

// QueueConfig очередь и ключ, с которым она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Kind тип уведомлений, которые приходят в очередь.
func (q QueueConfig) Kind() models.NotificationKind {
	return models.NotificationKind(q.RoutingKey)
}

// GetNotificationQueues очереди, которые читает отправщик писем.
func GetNotificationQueues() []QueueConfig {
	kinds := []models.NotificationKind{
		models.NotifyAccessGranted,
		models.NotifyAccessRevoked,
		models.NotifyWelcome,
		models.NotifyAccessExpiring,
	}
	queues := make([]QueueConfig, 0, len(kinds))
	for _, k := range kinds {
		queues = append(queues, QueueConfig{QueueName: "notifications." + string(k), RoutingKey: string(k)})
	}
	return queues
}
