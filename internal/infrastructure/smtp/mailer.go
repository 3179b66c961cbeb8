package smtp

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/go-signup-verify/internal/config"
	"github.com/go-signup-verify/internal/domain"
	"gopkg.in/gomail.v2"
)

// Mailer delivers verification messages.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, payload string, method domain.Method) error
}

// dialer is the part of *gomail.Dialer the mailer depends on.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

const (
	linkBody = `<p>Hi {{.Name}},</p><p>Click the link to verify: <a href="{{.Payload}}">{{.Payload}}</a> (expires in {{.Minutes}} minutes)</p>`
	otpBody  = `<p>Hi {{.Name}},</p><p>Your verification code is: <b>{{.Payload}}</b> (expires in {{.Minutes}} minutes)</p>`
)

var bodies = func() *template.Template {
	t := template.Must(template.New(string(domain.MethodLink)).Parse(linkBody))
	template.Must(t.New(string(domain.MethodOTP)).Parse(otpBody))
	return t
}()

// Message is a composed verification email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Compose builds the subject and HTML body for a verification email.
// For link delivery payload is the verification URL, for otp it is the code.
func Compose(to, name, payload string, method domain.Method, ttl time.Duration) (Message, error) {
	subject := "Verify your email"
	if method == domain.MethodOTP {
		subject = "Your verification code"
	}
	var buf bytes.Buffer
	err := bodies.ExecuteTemplate(&buf, string(method), struct {
		Name, Payload string
		Minutes       int
	}{name, payload, int(ttl / time.Minute)})
	if err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", method, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}

type mailer struct {
	dialer dialer
	from   string
	ttl    time.Duration
	logger *slog.Logger
}

// NewMailer returns a gomail-backed SMTP mailer.
func NewMailer(cfg *config.Config, logger *slog.Logger) Mailer {
	return newMailer(
		gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		cfg.SMTPFrom, cfg.Verification.TokenTTL, logger,
	)
}

func newMailer(d dialer, from string, ttl time.Duration, logger *slog.Logger) *mailer {
	return &mailer{dialer: d, from: from, ttl: ttl, logger: logger}
}

// SendVerification dials the SMTP server and sends the message. gomail has no
// context support, so the send runs in its own goroutine and the call returns
// ctx.Err() once the deadline passes. The abandoned dial finishes on its own.
func (m *mailer) SendVerification(ctx context.Context, to, name, payload string, method domain.Method) error {
	msg, err := Compose(to, name, payload, method, m.ttl)
	if err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(gm) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		m.logger.Info("verification email sent", slog.String("to", to), slog.String("method", string(method)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

// LogMailer writes messages to the log instead of sending them. It stands in
// for SMTP when no credentials are configured.
type LogMailer struct {
	ttl    time.Duration
	logger *slog.Logger
}

func NewLogMailer(ttl time.Duration, logger *slog.Logger) *LogMailer {
	return &LogMailer{ttl: ttl, logger: logger}
}

func (l *LogMailer) SendVerification(_ context.Context, to, name, payload string, method domain.Method) error {
	msg, err := Compose(to, name, payload, method, l.ttl)
	if err != nil {
		return err
	}
	l.logger.Info("smtp not configured, email logged",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("html", msg.HTML),
	)
	return nil
}
