package models

// NotificationKind тип уведомления; совпадает с routing key в RabbitMQ.
type NotificationKind string

const (
	// NotifyAccessGranted доступ выдан администратором.
	NotifyAccessGranted NotificationKind = "access_granted"
	// NotifyAccessRevoked доступ отозван администратором.
	NotifyAccessRevoked NotificationKind = "access_revoked"
	// NotifyWelcome оплата прошла, приветственное письмо.
	NotifyWelcome NotificationKind = "welcome"
	// NotifyAccessExpiring доступ скоро закончится.
	NotifyAccessExpiring NotificationKind = "access_expiring"
)

// Notification сообщение для очереди уведомлений.
type Notification struct {
	Kind      NotificationKind  `json:"kind"`
	AccountID string            `json:"account_id"`
	Email     string            `json:"email"`
	Name      string            `json:"name,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}
