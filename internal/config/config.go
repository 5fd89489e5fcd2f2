package config

import (
	"net/netip"
	"time"
)

type Config interface {
	EnvConfig
	CorsConfig
	SecurityConfig
	WebAuthnConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	IsProduction() bool
	GetAdminEmail() string
	GetTrustedProxies() []netip.Prefix
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type WebAuthnConfig interface {
	GetRPID() string
	GetOrigin() string
}

type StorageConfig interface {
	GetDatabaseURL() string
	GetEncryptionKeyEnvVar() string
	GetVault() VaultSettings
	GetStateSecret() string
	GetCleanupInterval() time.Duration
	GetMailPerMinute() int
}

type mainConfig struct {
	*Values
	Cors
	Security
}

// New wraps a loaded snapshot. The returned Config never changes; call Loader.Reload
// and fetch a new Config to observe updated values.
func New(values *Values) Config {
	return mainConfig{Values: values, Cors: Cors{origins: values.AllowedOrigins}}
}
