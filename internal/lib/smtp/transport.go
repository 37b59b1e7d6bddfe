package smtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
)

const dialTimeout = 10 * time.Second

// ErrRejected сервер окончательно отказал в доставке (код 5xx). Повтор не
// поможет.
var ErrRejected = errors.New("smtp server rejected message")

// Transport доставляет письма через SMTP со STARTTLS и PLAIN аутентификацией.
type Transport struct {
	cfg  config.SMTP
	log  *slog.Logger
	dial func() (Client, error)
	now  func() time.Time
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	t := &Transport{cfg: cfg, log: log, now: time.Now}
	t.dial = t.connect
	return t
}

// Send доставляет письмо. Отправителем выступает пользователь SMTP.
func (t *Transport) Send(msg Message) error {
	const op = "smtp.Send"
	log := t.log.With(
		slog.String("op", op),
		slog.String("kind", string(msg.Kind)),
		slog.String("account_id", msg.AccountID),
	)

	from := t.cfg.SMTPUser
	raw, err := msg.Bytes(from, t.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	client, err := t.dial()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		return t.fail(log, op, "MAIL FROM", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return t.fail(log, op, "RCPT TO", err)
	}
	wc, err := client.Data()
	if err != nil {
		return t.fail(log, op, "DATA", err)
	}
	if _, err := wc.Write(raw); err != nil {
		return t.fail(log, op, "DATA", err)
	}
	if err := wc.Close(); err != nil {
		return t.fail(log, op, "DATA", err)
	}
	if err := client.Quit(); err != nil {
		return t.fail(log, op, "QUIT", err)
	}

	log.Info("email sent", slog.String("to", msg.To))
	return nil
}

func (t *Transport) fail(log *slog.Logger, op, command string, err error) error {
	log.Error("smtp command failed", slog.String("command", command), sl.Err(err))
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return fmt.Errorf("%s: %s: %w: %w", op, command, ErrRejected, err)
	}
	return fmt.Errorf("%s: %s: %w", op, command, err)
}

// connect открывает сессию с сервером: STARTTLS обязателен.
func (t *Transport) connect() (Client, error) {
	addr := net.JoinHostPort(t.cfg.SMTPHost, t.cfg.SMTPPort)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		t.log.Error("failed to dial SMTP server", slog.String("addr", addr), sl.Err(err))
		return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	abort := func(err error) (Client, error) {
		if closeErr := client.Close(); closeErr != nil {
			t.log.Error("failed to close client", sl.Err(closeErr))
		}
		return nil, err
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return abort(errors.New("smtp server does not support STARTTLS"))
	}
	if err := client.StartTLS(&tls.Config{ServerName: t.cfg.SMTPHost, MinVersion: tls.VersionTLS12}); err != nil {
		return abort(fmt.Errorf("failed to start TLS: %w", err))
	}
	if err := client.Auth(smtp.PlainAuth("", t.cfg.SMTPUser, t.cfg.SMTPPass, t.cfg.SMTPHost)); err != nil {
		return abort(fmt.Errorf("smtp auth failed: %w", err))
	}
	return client, nil
}
