package mail

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-auth-hub/settings"
)

// LogUntilConfigured sends through SMTP once the SMTP settings are enabled and
// writes messages to the log until then. DEV only.
type LogUntilConfigured struct {
	config func() settings.SMTP
	smtp   Mailer
	log    Mailer
}

func NewLogUntilConfigured(config func() settings.SMTP, smtp Mailer) (*LogUntilConfigured, error) {
	if config == nil {
		return nil, errors.New("[NewLogUntilConfigured] config is required")
	}
	if smtp == nil {
		return nil, errors.New("[NewLogUntilConfigured] smtp mailer is required")
	}
	return &LogUntilConfigured{config: config, smtp: smtp, log: LogMailer{}}, nil
}

func (m *LogUntilConfigured) Send(ctx context.Context, msg Message) error {
	if m.config().Enabled {
		return m.smtp.Send(ctx, msg)
	}
	return m.log.Send(ctx, msg)
}
