package federation

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/settings"
)

type endpointOverride struct {
	endpoint *oauth2.Endpoint
	apiURL   string
}

type Option func(*Registry)

// WithGitHubEndpoint points the GitHub provider somewhere else (primarily for testing)
func WithGitHubEndpoint(endpoint oauth2.Endpoint, apiURL string) Option {
	return func(r *Registry) {
		r.github = endpointOverride{endpoint: &endpoint, apiURL: apiURL}
	}
}

// WithDiscordEndpoint points the Discord provider somewhere else (primarily for testing)
func WithDiscordEndpoint(endpoint oauth2.Endpoint, apiURL string) Option {
	return func(r *Registry) {
		r.discord = endpointOverride{endpoint: &endpoint, apiURL: apiURL}
	}
}

// Registry builds providers from the current settings snapshot, so enabling a
// provider or rotating its secret applies to the next login.
type Registry struct {
	snapshot func() settings.Settings
	baseURL  string
	github   endpointOverride
	discord  endpointOverride

	oidcLock sync.Mutex
	oidcKey  string
	oidc     *OIDCProvider
}

func NewRegistry(snapshot func() settings.Settings, baseURL string, opts ...Option) (*Registry, error) {
	if snapshot == nil {
		return nil, errors.New("[NewRegistry] settings snapshot is required")
	}
	if baseURL == "" {
		return nil, errors.New("[NewRegistry] base url is required")
	}
	r := &Registry{snapshot: snapshot, baseURL: strings.TrimSuffix(baseURL, "/")}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) RedirectURL(name string) string {
	return r.baseURL + "/login/" + name + "/callback"
}

// Enabled lists the providers that can currently be used.
func (r *Registry) Enabled() []string {
	s := r.snapshot()
	var names []string
	if s.GitHub.Enabled {
		names = append(names, GitHub)
	}
	if s.Discord.Enabled {
		names = append(names, Discord)
	}
	if s.OIDC.Enabled {
		names = append(names, OIDC)
	}
	return names
}

// Get returns the named provider. Unknown and disabled providers are InvalidInput.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	s := r.snapshot()
	unknown := apperrors.New(apperrors.KindInvalidInput, "unknown provider")

	switch name {
	case GitHub:
		if !s.GitHub.Enabled {
			return nil, unknown
		}
		return NewGitHubProvider(s.GitHub.ClientID, s.GitHub.ClientSecret, r.RedirectURL(name), r.github.endpoint, r.github.apiURL), nil
	case Discord:
		if !s.Discord.Enabled {
			return nil, unknown
		}
		return NewDiscordProvider(s.Discord.ClientID, s.Discord.ClientSecret, r.RedirectURL(name), r.discord.endpoint, r.discord.apiURL), nil
	case OIDC:
		if !s.OIDC.Enabled {
			return nil, unknown
		}
		return r.oidcProvider(ctx, s.OIDC)
	default:
		return nil, unknown
	}
}

// oidcProvider caches the discovered provider until the app settings change.
func (r *Registry) oidcProvider(ctx context.Context, app settings.OIDCApp) (*OIDCProvider, error) {
	key := app.IssuerURL + "\x00" + app.ClientID + "\x00" + app.ClientSecret

	r.oidcLock.Lock()
	defer r.oidcLock.Unlock()
	if r.oidc != nil && r.oidcKey == key {
		return r.oidc, nil
	}
	provider, err := NewOIDCProvider(ctx, app.IssuerURL, app.ClientID, app.ClientSecret, r.RedirectURL(OIDC))
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.Get]")
	}
	r.oidc, r.oidcKey = provider, key
	return provider, nil
}
