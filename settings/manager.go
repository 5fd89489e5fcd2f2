package settings

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/encryption"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/users"
)

// Manager serves the current settings snapshot and applies updates.
type Manager struct {
	repo     Repo
	envelope *encryption.Envelope
	current  atomic.Pointer[Settings]
}

func NewManager(repo Repo, envelope *encryption.Envelope) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] repo is required")
	}
	if envelope == nil {
		return nil, errors.New("[NewManager] envelope is required")
	}
	m := &Manager{repo: repo, envelope: envelope}
	defaults := Defaults()
	m.current.Store(&defaults)
	return m, nil
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() Settings {
	return *m.current.Load()
}

// Reload rebuilds the snapshot from the store. A record that does not decode
// falls back to its default; a secret that does not decrypt fails the reload and
// leaves the previous snapshot in place.
func (m *Manager) Reload(ctx context.Context) error {
	records, err := m.repo.All(ctx)
	if err != nil {
		return errors.Wrap(err, "[Manager.Reload] read settings")
	}

	next := Defaults()
	for key, raw := range records {
		if err := m.apply(ctx, &next, key, raw); err != nil {
			if apperrors.KindOf(err) == apperrors.KindCryptoFailure {
				return errors.Wrapf(err, "[Manager.Reload] %s", key)
			}
			log.Warn().Err(err).Str("key", key).Msg("invalid setting, using default")
		}
	}
	m.current.Store(&next)
	return nil
}

// Update validates a plaintext JSON document for key, encrypts its secrets,
// stores it and reloads.
func (m *Manager) Update(ctx context.Context, key string, value []byte) error {
	stored, err := m.seal(ctx, key, value)
	if err != nil {
		return err
	}
	if err := m.repo.Put(ctx, key, stored); err != nil {
		return errors.Wrap(err, "[Manager.Update] put")
	}
	return m.Reload(ctx)
}

func (m *Manager) apply(ctx context.Context, s *Settings, key string, raw []byte) error {
	var err error
	switch key {
	case KeyGitHub, KeyDiscord:
		var app OAuthApp
		if err = json.Unmarshal(raw, &app); err != nil {
			return err
		}
		if app.ClientSecret, err = m.open(ctx, app.ClientSecret); err != nil {
			return err
		}
		if key == KeyGitHub {
			s.GitHub = app
		} else {
			s.Discord = app
		}
	case KeyOIDC:
		var app OIDCApp
		if err = json.Unmarshal(raw, &app); err != nil {
			return err
		}
		if app.ClientSecret, err = m.open(ctx, app.ClientSecret); err != nil {
			return err
		}
		s.OIDC = app
	case KeySMTP:
		var smtp SMTP
		if err = json.Unmarshal(raw, &smtp); err != nil {
			return err
		}
		if smtp.Password, err = m.open(ctx, smtp.Password); err != nil {
			return err
		}
		s.SMTP = smtp
	case KeyPassword:
		var policy users.PasswordPolicy
		if err = json.Unmarshal(raw, &policy); err != nil {
			return err
		}
		if err = validatePolicy(policy); err != nil {
			return err
		}
		s.Password = policy
	default:
		return errors.Errorf("unknown setting %q", key)
	}
	return nil
}

func (m *Manager) seal(ctx context.Context, key string, value []byte) ([]byte, error) {
	invalid := func(msg string) error {
		return apperrors.New(apperrors.KindInvalidInput, msg)
	}

	var (
		out any
		err error
	)
	switch key {
	case KeyGitHub, KeyDiscord:
		var app OAuthApp
		if json.Unmarshal(value, &app) != nil {
			return nil, invalid("invalid setting value")
		}
		if app.Enabled && (app.ClientID == "" || app.ClientSecret == "") {
			return nil, invalid("client id and secret are required")
		}
		if app.ClientSecret, err = m.encrypt(ctx, app.ClientSecret); err != nil {
			return nil, err
		}
		out = app
	case KeyOIDC:
		var app OIDCApp
		if json.Unmarshal(value, &app) != nil {
			return nil, invalid("invalid setting value")
		}
		if app.Enabled {
			if u, perr := url.Parse(app.IssuerURL); perr != nil || u.Scheme == "" || u.Host == "" {
				return nil, invalid("invalid issuer url")
			}
			if app.ClientID == "" || app.ClientSecret == "" {
				return nil, invalid("client id and secret are required")
			}
		}
		if app.ClientSecret, err = m.encrypt(ctx, app.ClientSecret); err != nil {
			return nil, err
		}
		out = app
	case KeySMTP:
		var smtp SMTP
		if json.Unmarshal(value, &smtp) != nil {
			return nil, invalid("invalid setting value")
		}
		if smtp.Enabled && (smtp.Host == "" || smtp.From == "" || smtp.Port <= 0 || smtp.Port > 65535) {
			return nil, invalid("host, port and from address are required")
		}
		if smtp.Password, err = m.encrypt(ctx, smtp.Password); err != nil {
			return nil, err
		}
		out = smtp
	case KeyPassword:
		var policy users.PasswordPolicy
		if json.Unmarshal(value, &policy) != nil {
			return nil, invalid("invalid setting value")
		}
		if validatePolicy(policy) != nil {
			return nil, invalid("password length must be between 8 and 128")
		}
		out = policy
	default:
		return nil, invalid("unknown setting")
	}

	stored, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Update] marshal")
	}
	return stored, nil
}

func validatePolicy(policy users.PasswordPolicy) error {
	if policy.MinLength < 8 || policy.MinLength > 128 {
		return errors.Errorf("password length %d out of range", policy.MinLength)
	}
	return nil
}

// encrypt returns the stored form of a secret: base64 of the envelope output.
func (m *Manager) encrypt(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	blob, err := m.envelope.EncryptString(ctx, secret)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.encrypt]")
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

func (m *Manager) open(ctx context.Context, stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", errors.Wrap(apperrors.ErrCryptoFailure, "[Manager.open] secret is not base64")
	}
	return m.envelope.DecryptToString(ctx, blob)
}
