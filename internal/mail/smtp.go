package mail

import (
	"context"

	"gopkg.in/gomail.v2"
)

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPTransport struct {
	sender Sender
	from   string
}

func NewSMTPTransport(s SMTPSettings) *SMTPTransport {
	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)
	d.SSL = s.UseTLS
	return NewSMTPTransportWithSender(d, s.From)
}

func NewSMTPTransportWithSender(sender Sender, from string) *SMTPTransport {
	return &SMTPTransport{sender: sender, from: from}
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Send honours ctx by abandoning the wait; gomail itself has no cancellation,
// so the dial may still complete in the background.
func (t *SMTPTransport) Send(ctx context.Context, to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() { done <- t.sender.DialAndSend(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
