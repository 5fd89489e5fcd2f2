package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-hub/credentials"
)

func (s *Server) initRoutes() {
	api := func(h http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.APIMiddleware()...)
	}

	// CORS preflight for every API route
	s.RegisterRouteFunc("OPTIONS /", api(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// ACCOUNT
	s.RegisterRouteFunc("POST "+RouteRegister, api(s.RegisterHandler()))
	s.RegisterRouteFunc("POST "+RouteLogin, api(s.LoginHandler()))
	s.RegisterRouteFunc("POST "+RouteLogout, api(s.LogoutHandler()))

	// PASSKEY SIGN-IN / WEBAUTHN
	s.RegisterRouteFunc("POST "+RoutePasskeyLoginChallenge, api(s.ChallengeHandler()))
	s.RegisterRouteFunc("POST "+RoutePasskeyLogin, api(s.PasskeyLoginHandler()))
	s.RegisterRouteFunc("POST "+RouteWebAuthnChallenge, api(s.ChallengeHandler()))

	// SECOND FACTORS
	s.RegisterRouteFunc("POST "+RouteTOTPSetup, api(s.RegisterTOTPHandler()))
	s.RegisterRouteFunc("POST "+RouteTOTP, api(s.VerifyTOTPHandler()))
	s.RegisterRouteFunc("POST "+RoutePasskeyRegister, api(s.RegisterWebAuthnHandler(credentials.KindPasskey)))
	s.RegisterRouteFunc("POST "+RoutePasskey, api(s.VerifyWebAuthnHandler(credentials.KindPasskey)))
	s.RegisterRouteFunc("POST "+RouteSecurityKeyRegister, api(s.RegisterWebAuthnHandler(credentials.KindSecurityKey)))
	s.RegisterRouteFunc("POST "+RouteSecurityKey, api(s.VerifyWebAuthnHandler(credentials.KindSecurityKey)))
	s.RegisterRouteFunc("POST "+Route2FAReset, api(s.Reset2FAHandler()))

	// RECOVERY CODE
	s.RegisterRouteFunc("GET "+RouteRecoveryCode, api(s.RecoveryCodeHandler()))
	s.RegisterRouteFunc("POST "+RouteRecoveryCodeRegenerate, api(s.RegenerateRecoveryCodeHandler()))

	// SETTINGS
	s.RegisterRouteFunc("POST "+RouteSettingsPassword, api(s.ChangePasswordHandler()))
	s.RegisterRouteFunc("POST "+RouteSettingsEmail, api(s.UpdateEmailHandler()))
	s.RegisterRouteFunc("DELETE "+RouteSettingsTOTP, api(s.DeleteTOTPHandler()))
	s.RegisterRouteFunc("GET "+RouteSettingsPasskey, api(s.ListWebAuthnHandler(credentials.KindPasskey)))
	s.RegisterRouteFunc("DELETE "+RouteSettingsPasskey+"/{id}", api(s.DeleteWebAuthnHandler(credentials.KindPasskey)))
	s.RegisterRouteFunc("GET "+RouteSettingsSecurityKey, api(s.ListWebAuthnHandler(credentials.KindSecurityKey)))
	s.RegisterRouteFunc("DELETE "+RouteSettingsSecurityKey+"/{id}", api(s.DeleteWebAuthnHandler(credentials.KindSecurityKey)))

	// EMAIL VERIFICATION
	s.RegisterRouteFunc("POST "+RouteVerifyEmail, api(s.VerifyEmailHandler()))
	s.RegisterRouteFunc("POST "+RouteVerifyEmailResend, api(s.ResendVerificationHandler()))

	// PASSWORD RESET
	s.RegisterRouteFunc("POST "+RouteForgotPassword, api(s.ForgotPasswordHandler()))
	s.RegisterRouteFunc("POST "+RouteResetVerifyEmail, api(s.ResetVerifyEmailHandler()))
	s.RegisterRouteFunc("POST "+RouteResetTOTP, api(s.ResetTOTPHandler()))
	s.RegisterRouteFunc("POST "+RouteResetPasskey, api(s.ResetWebAuthnHandler(credentials.KindPasskey)))
	s.RegisterRouteFunc("POST "+RouteResetSecurityKey, api(s.ResetWebAuthnHandler(credentials.KindSecurityKey)))
	s.RegisterRouteFunc("POST "+RouteResetRecoveryCode, api(s.ResetRecoveryCodeHandler()))
	s.RegisterRouteFunc("POST "+RouteResetPassword, api(s.ResetPasswordHandler()))

	// FEDERATED SIGN-IN
	if s.federation != nil && s.state != nil {
		s.RegisterRouteFunc("GET "+RouteFederatedProviders, api(s.FederatedProvidersHandler()))
		s.RegisterRouteFunc("GET "+RouteFederatedLogin, api(s.FederatedLoginHandler()))
		s.RegisterRouteFunc("GET "+RouteFederatedCallback, api(s.FederatedCallbackHandler()))
	}

	// ADMIN
	s.RegisterRouteFunc("POST "+RouteAdminSetting, api(s.UpdateSettingHandler()))
	s.RegisterRouteFunc("GET "+RouteAdminAudit, api(s.AuditLogHandler()))
	s.RegisterRouteFunc("GET "+RouteAdminAuditEvent, api(s.AuditEventHandler()))
	s.RegisterRouteFunc("GET "+RouteAdminUsers, api(s.ListUsersHandler()))
	s.RegisterRouteFunc("GET "+RouteAdminUser, api(s.GetUserHandler()))
	s.RegisterRouteFunc("DELETE "+RouteAdminUser, api(s.DeleteUserHandler()))
	s.RegisterRouteFunc("DELETE "+RouteAdminUserLink, api(s.UnlinkExternalIDHandler()))

	// OPERATIONS
	s.RegisterRouteFunc("GET "+RouteMetrics, ChainMiddleware(s.metrics.Handler().ServeHTTP, s.OpsMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealthz, ChainMiddleware(s.HealthzHandler(), s.OpsMiddleware()...))
}
