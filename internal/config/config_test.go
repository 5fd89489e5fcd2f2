package config_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	l, err := config.Load("")
	require.NoError(t, err)

	c := l.Config()
	require.Equal(t, config.EnvDev, c.GetEnv())
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "localhost", c.GetRPID())
	require.Equal(t, "http://localhost:8080", c.GetOrigin())
	require.Equal(t, "ENCRYPTION_KEY", c.GetEncryptionKeyEnvVar())
	require.Equal(t, 30*24*time.Hour, c.GetSessionExpiry())
	require.Equal(t, 15*24*time.Hour, c.GetSessionRenewThreshold())
	require.False(t, c.IsProduction())
	require.Empty(t, c.GetTrustedProxies())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTHHUB_BASE_URL", "https://auth.example.com/")
	t.Setenv("AUTHHUB_PORT", "9000")

	l, err := config.Load("")
	require.NoError(t, err)

	c := l.Config()
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, "auth.example.com", c.GetRPID())
	require.Equal(t, "https://auth.example.com", c.GetOrigin())
}

func TestProductionRequiresHTTPSAndStateSecret(t *testing.T) {
	t.Setenv("AUTHHUB_ENV", "prod")

	_, err := config.Load("")
	require.Error(t, err)

	t.Setenv("AUTHHUB_BASE_URL", "https://auth.example.com")
	_, err = config.Load("")
	require.Error(t, err)

	t.Setenv("AUTHHUB_STATE_SECRET", "s3cret")
	l, err := config.Load("")
	require.NoError(t, err)
	require.True(t, l.Config().IsProduction())
}

func TestReloadSwapsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: First\nallowed_origins:\n  - https://a.example.com\n"), 0o600))

	l, err := config.Load(path)
	require.NoError(t, err)
	before := l.Config()
	require.Equal(t, "First", before.GetAppName())
	require.True(t, before.GetAllowedOrigins().IsAllowedOrigin("https://a.example.com"))

	require.NoError(t, os.WriteFile(path, []byte("app_name: Second\n"), 0o600))
	require.NoError(t, l.Reload())

	require.Equal(t, "Second", l.Config().GetAppName())
	require.Equal(t, "First", before.GetAppName())
}

func TestReloadKeepsPreviousSnapshotOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: Good\n"), 0o600))

	l, err := config.Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("env: staging\n"), 0o600))
	require.Error(t, l.Reload())
	require.Equal(t, "Good", l.Config().GetAppName())
}

func TestTrustedProxies(t *testing.T) {
	t.Setenv("AUTHHUB_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7 ::1")

	l, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("::1/128"),
	}, l.Config().GetTrustedProxies())

	t.Setenv("AUTHHUB_TRUSTED_PROXIES", "10.0.0.0/33")
	_, err = config.Load("")
	require.Error(t, err)

	t.Setenv("AUTHHUB_TRUSTED_PROXIES", "proxy.internal")
	_, err = config.Load("")
	require.Error(t, err)
}
