package config

import "time"

// SecurityConfig holds the fixed lifetimes of the session engine.
type SecurityConfig interface {
	GetSessionExpiry() time.Duration
	GetSessionRenewThreshold() time.Duration
	GetPasswordResetExpiry() time.Duration
	GetEmailVerificationExpiry() time.Duration
	GetMaxWebAuthnCredentials() int
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetSessionExpiry() time.Duration {
	return 30 * 24 * time.Hour
}

// GetSessionRenewThreshold is the remaining lifetime below which a validated
// session is pushed out to a fresh GetSessionExpiry window.
func (Security) GetSessionRenewThreshold() time.Duration {
	return 15 * 24 * time.Hour
}

func (Security) GetPasswordResetExpiry() time.Duration {
	return 10 * time.Minute
}

func (Security) GetEmailVerificationExpiry() time.Duration {
	return 10 * time.Minute
}

func (Security) GetMaxWebAuthnCredentials() int {
	return 5
}
