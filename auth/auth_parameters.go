package auth

import (
	"time"

	"github.com/jrsteele09/go-auth-hub/audit"
	"github.com/jrsteele09/go-auth-hub/emailverification"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/users"
)

// Pages a flow may send the browser to next.
const (
	HomePath             = "/"
	LoginPath            = "/login"
	VerifyEmailPath      = "/verify-email"
	RecoveryCodePath     = "/recovery-code"
	ResetPasswordPath    = "/reset-password"
	ResetVerifyEmailPath = "/reset-password/verify-email"
)

// Caller is the party behind a request: the session and user resolved from the
// session cookie, if any, and where the request came from.
type Caller struct {
	Session   *sessions.Session
	User      *users.User
	IP        string
	UserAgent string
	Referer   string
}

func (c Caller) meta() audit.Meta {
	return audit.Meta{IP: c.IP, UserAgent: c.UserAgent, Referer: c.Referer}
}

// IssuedToken is a freshly minted session or reset token for a cookie.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Outcome tells the transport which cookies to change and where to go next.
type Outcome struct {
	Redirect string

	Session      *IssuedToken
	ClearSession bool

	ResetSession      *IssuedToken
	ClearResetSession bool

	EmailVerification      *emailverification.Request
	ClearEmailVerification bool
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}
