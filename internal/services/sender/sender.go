// Package sender отправляет письма по уведомлениям из очередей RabbitMQ.
package sender

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/smtp"
	"github.com/magabrotheeeer/quran-entitlements/internal/models"
	"github.com/magabrotheeeer/quran-entitlements/internal/rabbitmq"
)

// SenderService формирует письма по уведомлениям и передаёт их в Mailer.
type SenderService struct {
	mailer smtp.Mailer
	log    *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(mailer smtp.Mailer, log *slog.Logger) *SenderService {
	return &SenderService{
		mailer: mailer,
		log:    log,
	}
}

type letter struct {
	subject string
	body    func(n models.Notification) string
}

var letters = map[models.NotificationKind]letter{
	models.NotifyAccessGranted: {
		subject: "Вам открыт доступ",
		body: func(n models.Notification) string {
			return fmt.Sprintf("Здравствуйте, %s!\n\nАдминистратор открыл вам полный доступ (срок: %s).\nВойдите с этим адресом почты, чтобы начать занятия.",
				greeting(n), n.Context["duration"])
		},
	},
	models.NotifyAccessRevoked: {
		subject: "Доступ закрыт",
		body: func(n models.Notification) string {
			return fmt.Sprintf("Здравствуйте, %s!\n\nВыданный администратором доступ закрыт.", greeting(n))
		},
	},
	models.NotifyWelcome: {
		subject: "Спасибо за подписку",
		body: func(n models.Notification) string {
			return fmt.Sprintf("Здравствуйте, %s!\n\nОплата прошла, подписка (%s) активна.", greeting(n), n.Context["plan"])
		},
	},
	models.NotifyAccessExpiring: {
		subject: "Доступ скоро закончится",
		body: func(n models.Notification) string {
			return fmt.Sprintf("Здравствуйте, %s!\n\nВаш доступ заканчивается %s.\nПродлите подписку заранее, чтобы не прерывать занятия.",
				greeting(n), n.Context["end_date"])
		},
	},
}

func greeting(n models.Notification) string {
	if n.Name != "" {
		return n.Name
	}
	return n.Email
}

// Send разбирает уведомление типа kind и отправляет письмо. Уведомления,
// которые не удастся отправить и при повторе, помечаются
// rabbitmq.ErrUnprocessable.
func (s *SenderService) Send(kind models.NotificationKind, body []byte) error {
	const op = "sender.Send"
	log := s.log.With(slog.String("op", op), slog.String("kind", string(kind)))

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Error("failed to unmarshal notification", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w: %w", op, rabbitmq.ErrUnprocessable, err)
	}
	if n.Kind != "" && n.Kind != kind {
		log.Warn("notification kind differs from queue", slog.String("message_kind", string(n.Kind)))
		kind = n.Kind
	}
	l, ok := letters[kind]
	if !ok {
		return fmt.Errorf("%s: unknown notification kind %q: %w", op, kind, rabbitmq.ErrUnprocessable)
	}

	err := s.mailer.Send(smtp.Message{
		Kind:      kind,
		AccountID: n.AccountID,
		To:        n.Email,
		Subject:   l.subject,
		Body:      l.body(n),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, smtp.ErrNoRecipient), errors.Is(err, smtp.ErrInvalidHeader), errors.Is(err, smtp.ErrRejected):
		return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrUnprocessable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
