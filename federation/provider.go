package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	GitHub  = "github"
	Discord = "discord"
	OIDC    = "oidc"
)

// Identity is what a provider vouches for after a successful login.
type Identity struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Username       string
	Name           string
}

// Provider runs the authorization code flow with PKCE against one identity
// provider.
type Provider interface {
	Name() string
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*Identity, error)
}

// oauthProvider is the shared part of the providers that read identity from a
// JSON API after the token exchange.
type oauthProvider struct {
	config *oauth2.Config
}

func (p *oauthProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

func (p *oauthProvider) client(ctx context.Context, code, verifier string) (*http.Client, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, errors.Wrap(err, "token exchange")
	}
	return p.config.Client(ctx, token), nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", url)
}
