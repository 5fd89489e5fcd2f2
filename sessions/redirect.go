package sessions

import "github.com/jrsteele09/go-auth-hub/users"

const (
	PasskeyPath     = "/2fa/passkey"
	SecurityKeyPath = "/2fa/security-key"
	TOTPPath        = "/2fa/totp"
	SetupPath       = "/2fa/setup"
)

// TwoFactorRedirect is where a signed-in user without a verified second factor
// goes next.
func TwoFactorRedirect(factors users.Factors) string {
	switch factors.Preferred() {
	case users.FactorPasskey:
		return PasskeyPath
	case users.FactorSecurityKey:
		return SecurityKeyPath
	case users.FactorTOTP:
		return TOTPPath
	default:
		return SetupPath
	}
}
