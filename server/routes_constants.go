package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Account
	RouteRegister = "/register"
	RouteLogin    = "/login"
	RouteLogout   = "/logout"

	// Passkey sign-in and WebAuthn ceremonies
	RoutePasskeyLoginChallenge = "/login/passkey/challenge"
	RoutePasskeyLogin          = "/login/passkey"
	RouteWebAuthnChallenge     = "/webauthn/challenge"

	// Second factors
	RouteTOTPSetup           = "/2fa/totp/setup"
	RouteTOTP                = "/2fa/totp"
	RoutePasskeyRegister     = "/2fa/passkey/register"
	RoutePasskey             = "/2fa/passkey"
	RouteSecurityKeyRegister = "/2fa/security-key/register"
	RouteSecurityKey         = "/2fa/security-key"
	Route2FAReset            = "/2fa/reset"

	// Recovery code
	RouteRecoveryCode           = "/recovery-code"
	RouteRecoveryCodeRegenerate = "/recovery-code/regenerate"

	// Account settings
	RouteSettingsPassword    = "/settings/password"
	RouteSettingsEmail       = "/settings/email"
	RouteSettingsTOTP        = "/settings/totp"
	RouteSettingsPasskey     = "/settings/passkey"
	RouteSettingsSecurityKey = "/settings/security-key"

	// Email verification
	RouteVerifyEmail       = "/verify-email"
	RouteVerifyEmailResend = "/verify-email/resend"

	// Password reset
	RouteForgotPassword    = "/forgot-password"
	RouteResetVerifyEmail  = "/reset-password/verify-email"
	RouteResetTOTP         = "/reset-password/2fa/totp"
	RouteResetPasskey      = "/reset-password/2fa/passkey"
	RouteResetSecurityKey  = "/reset-password/2fa/security-key"
	RouteResetRecoveryCode = "/reset-password/2fa/recovery-code"
	RouteResetPassword     = "/reset-password"

	// Federated sign-in
	RouteFederatedProviders = "/login/providers"
	RouteFederatedLogin     = "/login/{provider}"
	RouteFederatedCallback  = "/login/{provider}/callback"

	// Admin
	RouteAdminSetting    = "/admin/settings/{key}"
	RouteAdminAudit      = "/admin/audit"
	RouteAdminAuditEvent = "/admin/audit/{id}"
	RouteAdminUsers      = "/admin/users"
	RouteAdminUser       = "/admin/users/{id}"
	RouteAdminUserLink   = "/admin/users/{id}/external/{provider}"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)
