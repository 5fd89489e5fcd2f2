package federation_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-auth-hub/federation"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/settings"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// newTokenServer serves a token endpoint that insists on PKCE plus whatever
// API routes the test adds.
func newTokenServer(t *testing.T, extra map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" || r.Form.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"access_token": "access-1", "token_type": "bearer", "expires_in": 3600})
	})
	for path, body := range extra {
		body := body
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer access-1" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			writeJSON(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func endpointFor(srv *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
}

func enabledSettings() func() settings.Settings {
	return func() settings.Settings {
		s := settings.Defaults()
		s.GitHub = settings.OAuthApp{Enabled: true, ClientID: "gh-id", ClientSecret: "gh-secret"}
		s.Discord = settings.OAuthApp{Enabled: true, ClientID: "dc-id", ClientSecret: "dc-secret"}
		return s
	}
}

func TestGitHubExchange(t *testing.T) {
	srv := newTokenServer(t, map[string]any{
		"/user": map[string]any{"id": 42, "login": "octo", "name": "Octo Cat"},
		"/user/emails": []map[string]any{
			{"email": "other@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	})
	registry, err := federation.NewRegistry(enabledSettings(), "https://hub.example.com/", federation.WithGitHubEndpoint(endpointFor(srv), srv.URL))
	require.NoError(t, err)

	provider, err := registry.Get(context.Background(), federation.GitHub)
	require.NoError(t, err)
	require.Equal(t, federation.GitHub, provider.Name())

	authURL, err := url.Parse(provider.AuthCodeURL("state-1", oauth2.GenerateVerifier()))
	require.NoError(t, err)
	q := authURL.Query()
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("code_challenge"))
	require.Equal(t, "https://hub.example.com/login/github/callback", q.Get("redirect_uri"))

	identity, err := provider.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	require.Equal(t, &federation.Identity{
		ProviderUserID: "42",
		Email:          "octo@example.com",
		EmailVerified:  true,
		Username:       "octo",
		Name:           "Octo Cat",
	}, identity)

	_, err = provider.Exchange(context.Background(), "bad-code", oauth2.GenerateVerifier())
	require.Error(t, err)
}

func TestGitHubWithoutVerifiedEmail(t *testing.T) {
	srv := newTokenServer(t, map[string]any{
		"/user":        map[string]any{"id": 7, "login": "nomail"},
		"/user/emails": []map[string]any{{"email": "x@example.com", "primary": true, "verified": false}},
	})
	registry, err := federation.NewRegistry(enabledSettings(), "https://hub.example.com", federation.WithGitHubEndpoint(endpointFor(srv), srv.URL))
	require.NoError(t, err)
	provider, err := registry.Get(context.Background(), federation.GitHub)
	require.NoError(t, err)

	_, err = provider.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.Error(t, err)
}

func TestDiscordExchange(t *testing.T) {
	srv := newTokenServer(t, map[string]any{
		"/users/@me": map[string]any{"id": "9001", "username": "wumpus", "email": "w@example.com", "verified": true},
	})
	registry, err := federation.NewRegistry(enabledSettings(), "https://hub.example.com", federation.WithDiscordEndpoint(endpointFor(srv), srv.URL))
	require.NoError(t, err)
	provider, err := registry.Get(context.Background(), federation.Discord)
	require.NoError(t, err)

	identity, err := provider.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	require.Equal(t, "9001", identity.ProviderUserID)
	require.Equal(t, "w@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
}

func TestOIDCExchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.NotEmpty(t, r.Form.Get("code_verifier"))
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":            srv.URL,
			"aud":            "oidc-client",
			"sub":            "subject-1",
			"email":          "o@example.com",
			"email_verified": true,
			"iat":            time.Now().Unix(),
			"exp":            time.Now().Add(time.Hour).Unix(),
		})
		token.Header["kid"] = "k1"
		idToken, err := token.SignedString(key)
		require.NoError(t, err)
		writeJSON(w, map[string]any{"access_token": "a", "token_type": "bearer", "id_token": idToken})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	snapshot := func() settings.Settings {
		s := settings.Defaults()
		s.OIDC = settings.OIDCApp{Enabled: true, IssuerURL: srv.URL, ClientID: "oidc-client", ClientSecret: "secret"}
		return s
	}
	registry, err := federation.NewRegistry(snapshot, "https://hub.example.com")
	require.NoError(t, err)
	require.Equal(t, []string{federation.OIDC}, registry.Enabled())

	provider, err := registry.Get(context.Background(), federation.OIDC)
	require.NoError(t, err)
	again, err := registry.Get(context.Background(), federation.OIDC)
	require.NoError(t, err)
	require.Same(t, provider, again)

	identity, err := provider.Exchange(context.Background(), "any", oauth2.GenerateVerifier())
	require.NoError(t, err)
	require.Equal(t, "subject-1", identity.ProviderUserID)
	require.Equal(t, "o@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
}

func TestDisabledProvidersAreUnknown(t *testing.T) {
	registry, err := federation.NewRegistry(settings.Defaults, "https://hub.example.com")
	require.NoError(t, err)
	require.Empty(t, registry.Enabled())

	for _, name := range []string{federation.GitHub, federation.Discord, federation.OIDC, "myspace"} {
		_, err := registry.Get(context.Background(), name)
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestStateCodec(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	codec, err := federation.NewStateCodec([]byte("0123456789abcdef0123456789abcdef"), federation.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	ls, err := codec.Issue(federation.GitHub)
	require.NoError(t, err)

	verifier, err := codec.Verify(ls.Cookie, federation.GitHub, ls.State)
	require.NoError(t, err)
	require.Equal(t, ls.Verifier, verifier)

	_, err = codec.Verify(ls.Cookie, federation.Discord, ls.State)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	_, err = codec.Verify(ls.Cookie, federation.GitHub, "forged")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	other, err := federation.NewStateCodec([]byte("another-secret-of-32-bytes-long!"))
	require.NoError(t, err)
	_, err = other.Verify(ls.Cookie, federation.GitHub, ls.State)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	now = now.Add(11 * time.Minute)
	_, err = codec.Verify(ls.Cookie, federation.GitHub, ls.State)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	_, err = federation.NewStateCodec([]byte("short"))
	require.Error(t, err)
}
