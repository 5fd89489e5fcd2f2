package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix = "AUTHHUB"

	EnvDev  = "DEV"
	EnvProd = "PROD"
)

// VaultSettings locates the encryption key inside a Vault KV v2 mount.
// An empty Address means the key is read from the environment instead.
type VaultSettings struct {
	Address string
	Token   string
	Mount   string
	Path    string
	Field   string
}

// Values is an immutable, validated configuration snapshot.
type Values struct {
	Env              string
	AppName          string
	Port             string
	BaseURL          string
	RPID             string
	LogLevel         string
	AllowedOrigins   []string
	DatabaseURL      string
	EncryptionKeyEnv string
	Vault            VaultSettings
	StateSecret      string
	CleanupInterval  time.Duration
	MailPerMinute    int
	AdminEmail       string
	// TrustedProxies are the peers whose forwarding headers name the client.
	TrustedProxies []netip.Prefix
}

var _ EnvConfig = (*Values)(nil)

func (v *Values) GetPort() string {
	port := v.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (v *Values) GetAppName() string { return v.AppName }
func (v *Values) GetEnv() string { return v.Env }
func (v *Values) GetBaseURL() string { return v.BaseURL }
func (v *Values) GetLogLevel() string { return v.LogLevel }
func (v *Values) IsProduction() bool { return v.Env == EnvProd }

// GetAdminEmail names the account promoted to admin at startup, if any.
func (v *Values) GetAdminEmail() string { return strings.ToLower(strings.TrimSpace(v.AdminEmail)) }

func (v *Values) GetTrustedProxies() []netip.Prefix { return v.TrustedProxies }

func (v *Values) GetRPID() string { return v.RPID }

// GetOrigin is the exact origin WebAuthn client data must carry.
func (v *Values) GetOrigin() string {
	return strings.TrimSuffix(v.BaseURL, "/")
}

func (v *Values) GetDatabaseURL() string { return v.DatabaseURL }
func (v *Values) GetEncryptionKeyEnvVar() string { return v.EncryptionKeyEnv }
func (v *Values) GetVault() VaultSettings { return v.Vault }
func (v *Values) GetStateSecret() string { return v.StateSecret }
func (v *Values) GetCleanupInterval() time.Duration { return v.CleanupInterval }
func (v *Values) GetMailPerMinute() int { return v.MailPerMinute }

// Loader owns the viper instance and the current snapshot.
type Loader struct {
	v       *viper.Viper
	path    string
	current atomic.Pointer[Values]
}

// Load reads configuration from the optional file at path and from AUTHHUB_*
// environment variables, applying defaults for everything unset.
func Load(path string) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	l := &Loader{v: v, path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the sources and swaps the snapshot. On error the previous
// snapshot stays in place.
func (l *Loader) Reload() error {
	if l.path != "" {
		l.v.SetConfigFile(l.path)
		if err := l.v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "[config.Reload] failed to read config file")
		}
	}
	values, err := build(l.v)
	if err != nil {
		return err
	}
	l.current.Store(values)
	return nil
}

// Values returns the current snapshot.
func (l *Loader) Values() *Values {
	return l.current.Load()
}

// Config returns the current snapshot behind the Config interface.
func (l *Loader) Config() Config {
	return New(l.Values())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDev)
	v.SetDefault("app_name", "Auth Hub")
	v.SetDefault("port", "8080")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("database_url", "")
	v.SetDefault("encryption_key_env", "ENCRYPTION_KEY")
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.path", "authhub")
	v.SetDefault("vault.field", "encryption_key")
	v.SetDefault("state_secret", "")
	v.SetDefault("cleanup_interval", time.Minute)
	v.SetDefault("mail_per_minute", 30)
	v.SetDefault("admin_email", "")
	v.SetDefault("trusted_proxies", []string{})
}

func build(v *viper.Viper) (*Values, error) {
	values := &Values{
		Env:              strings.ToUpper(v.GetString("env")),
		AppName:          v.GetString("app_name"),
		Port:             v.GetString("port"),
		BaseURL:          v.GetString("base_url"),
		RPID:             v.GetString("rp_id"),
		LogLevel:         v.GetString("log_level"),
		AllowedOrigins:   v.GetStringSlice("allowed_origins"),
		DatabaseURL:      v.GetString("database_url"),
		EncryptionKeyEnv: v.GetString("encryption_key_env"),
		Vault:            VaultSettings{
			Address: v.GetString("vault.address"),
			Token:   v.GetString("vault.token"),
			Mount:   v.GetString("vault.mount"),
			Path:    v.GetString("vault.path"),
			Field:   v.GetString("vault.field"),
		},
		StateSecret:     v.GetString("state_secret"),
		CleanupInterval: v.GetDuration("cleanup_interval"),
		MailPerMinute:   v.GetInt("mail_per_minute"),
		AdminEmail:      v.GetString("admin_email"),
	}

	proxies, err := parseTrustedProxies(v.GetStringSlice("trusted_proxies"))
	if err != nil {
		return nil, err
	}
	values.TrustedProxies = proxies

	if values.Env != EnvDev && values.Env != EnvProd {
		return nil, errors.Errorf("[config.build] env must be %s or %s, got %q", EnvDev, EnvProd, values.Env)
	}
	base, err := url.Parse(values.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("[config.build] base_url %q is not an absolute URL", values.BaseURL)
	}
	if values.RPID == "" {
		values.RPID = base.Hostname()
	}
	if values.Env == EnvProd && base.Scheme != "https" {
		return nil, errors.New("[config.build] base_url must use https in PROD")
	}
	if values.Env == EnvProd && values.StateSecret == "" {
		return nil, errors.New("[config.build] state_secret is required in PROD")
	}
	if values.CleanupInterval <= 0 {
		values.CleanupInterval = time.Minute
	}
	if values.MailPerMinute <= 0 {
		values.MailPerMinute = 30
	}
	return values, nil
}

// parseTrustedProxies accepts addresses and CIDR ranges, separated by commas
// or whitespace.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, entry := range entries {
		for _, raw := range strings.FieldsFunc(entry, func(r rune) bool { return r == ',' || r == ' ' }) {
			if strings.Contains(raw, "/") {
				prefix, err := netip.ParsePrefix(raw)
				if err != nil {
					return nil, errors.Errorf("[config.build] trusted_proxies entry %q is not a CIDR range", raw)
				}
				out = append(out, prefix.Masked())
				continue
			}
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, errors.Errorf("[config.build] trusted_proxies entry %q is not an IP address", raw)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return out, nil
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
