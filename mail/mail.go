package mail

import (
	"context"
	"fmt"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

func VerificationEmail(appName, to, code string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s email verification code", appName),
		Body:    fmt.Sprintf("Your email verification code is %s.\nIt expires in 10 minutes.\n", code),
	}
}

func PasswordResetEmail(appName, to, code string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s password reset code", appName),
		Body:    fmt.Sprintf("Your password reset code is %s.\nIt expires in 10 minutes. If you did not ask for a reset you can ignore this email.\n", code),
	}
}
