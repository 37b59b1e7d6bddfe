package smtp

import (
	"errors"
	"mime"
	"strings"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/models"
)

var (
	// ErrNoRecipient у письма нет адреса получателя.
	ErrNoRecipient = errors.New("message without recipient")
	// ErrInvalidHeader значение заголовка содержит перевод строки.
	ErrInvalidHeader = errors.New("header value contains line break")
)

// Message письмо об изменении доступа аккаунта.
type Message struct {
	Kind      models.NotificationKind
	AccountID string
	To        string
	Subject   string
	Body      string
}

// Validate проверяет, что письмо можно отправить.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	for _, v := range []string{m.To, m.Subject, m.AccountID, string(m.Kind)} {
		if strings.ContainsAny(v, "\r\n") {
			return ErrInvalidHeader
		}
	}
	return nil
}

// Headers заголовки письма от from. Письма об отзыве и окончании доступа
// помечаются как важные.
func (m Message) Headers(from string, now time.Time) []string {
	h := []string{
		"From: " + from,
		"To: " + m.To,
		"Subject: " + mime.QEncoding.Encode("UTF-8", m.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: 8bit",
		"Auto-Submitted: auto-generated",
		"X-Notification-Kind: " + string(m.Kind),
	}
	if m.AccountID != "" {
		h = append(h, "X-Account-ID: "+m.AccountID)
	}
	switch m.Kind {
	case models.NotifyAccessRevoked, models.NotifyAccessExpiring:
		h = append(h, "Importance: high")
	}
	return h
}

// Bytes письмо целиком в виде, пригодном для DATA.
func (m Message) Bytes(from string, now time.Time) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	body := strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n")
	lines := append(m.Headers(from, now), "", body)
	return []byte(strings.Join(lines, "\r\n")), nil
}
