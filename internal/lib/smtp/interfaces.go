// Package smtp доставляет письма об изменениях доступа через SMTP сервер.
package smtp

import "io"

// Client команды SMTP, нужные для доставки одного письма.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Mailer доставка письма одному получателю.
type Mailer interface {
	Send(msg Message) error
}
