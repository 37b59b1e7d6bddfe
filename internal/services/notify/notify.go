// Package notify публикует уведомления о событиях доступа в очередь. Отправка
// не блокирует вызывающего на ошибке: сбой только логируется.
package notify

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

// Publisher публикует сообщение с routing key.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Notifier отправляет уведомления через Publisher.
type Notifier struct {
	pub Publisher
	log *slog.Logger
}

// New создаёт Notifier.
func New(pub Publisher, log *slog.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

// Notify публикует уведомление kind для аккаунта.
func (n *Notifier) Notify(ctx context.Context, kind models.NotificationKind, account *models.Account, extra map[string]string) {
	const op = "notify.Notify"
	if account == nil {
		return
	}
	if err := ctx.Err(); err != nil {
		n.log.Warn("notification skipped", slog.String("op", op), slog.String("kind", string(kind)), sl.Err(err))
		return
	}
	msg := models.Notification{
		Kind:      kind,
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Context:   extra,
	}
	if err := n.pub.Publish(string(kind), msg); err != nil {
		n.log.Error("failed to publish notification",
			slog.String("op", op),
			slog.String("kind", string(kind)),
			slog.String("account_id", account.ID),
			sl.Err(err))
		return
	}
	n.log.Debug("notification published", slog.String("op", op), slog.String("kind", string(kind)))
}

// Nop ничего не отправляет. Используется, когда брокер не настроен.
type Nop struct{}

// Notify ничего не делает.
func (Nop) Notify(context.Context, models.NotificationKind, *models.Account, map[string]string) {}
