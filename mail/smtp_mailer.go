package mail

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/jrsteele09/go-auth-hub/settings"
)

const dialTimeout = 15 * time.Second

// SendFunc delivers a built message through client.
type SendFunc func(ctx context.Context, client *gomail.Client, msg *gomail.Msg) error

type SMTPOption func(*SMTPMailer)

// WithSendFunc replaces the transport (primarily for testing)
func WithSendFunc(send SendFunc) SMTPOption {
	return func(m *SMTPMailer) {
		m.send = send
	}
}

// SMTPMailer sends through the SMTP server in the current settings snapshot, so
// a settings change applies to the next message.
type SMTPMailer struct {
	config func() settings.SMTP
	send   SendFunc
}

func NewSMTPMailer(config func() settings.SMTP, opts ...SMTPOption) (*SMTPMailer, error) {
	if config == nil {
		return nil, errors.New("[NewSMTPMailer] config is required")
	}
	m := &SMTPMailer{config: config, send: dialAndSend}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func dialAndSend(ctx context.Context, client *gomail.Client, msg *gomail.Msg) error {
	return client.DialAndSendWithContext(ctx, msg)
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := m.config()
	if !cfg.Enabled {
		return errors.New("[SMTPMailer.Send] smtp is not configured")
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return errors.New("[SMTPMailer.Send] header injection")
	}

	built := gomail.NewMsg()
	if err := built.From(cfg.From); err != nil {
		return errors.Wrap(err, "[SMTPMailer.Send] from")
	}
	if err := built.To(msg.To); err != nil {
		return errors.Wrap(err, "[SMTPMailer.Send] to")
	}
	built.Subject(msg.Subject)
	built.SetDate()
	built.SetBodyString(gomail.TypeTextPlain, msg.Body)

	client, err := m.client(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "[SMTPMailer.Send] client")
	}
	if err := m.send(ctx, client, built); err != nil {
		return errors.Wrapf(err, "[SMTPMailer.Send] send to %s", client.ServerAddr())
	}
	return nil
}

// client builds a go-mail client whose connection is closed as soon as ctx is
// done, so a stalled server cannot outlive the request.
func (m *SMTPMailer) client(ctx context.Context, cfg settings.SMTP) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(dialTimeout),
		gomail.WithDialContextFunc(func(dialCtx context.Context, network, address string) (net.Conn, error) {
			var dialer net.Dialer
			conn, err := dialer.DialContext(dialCtx, network, address)
			if err != nil {
				return nil, err
			}
			context.AfterFunc(ctx, func() { _ = conn.Close() })
			return conn, nil
		}),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return gomail.NewClient(cfg.Host, opts...)
}
