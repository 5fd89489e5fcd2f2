package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogMailer writes messages to the log instead of sending them. DEV only.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("mail not sent (log mailer)")
	return nil
}
