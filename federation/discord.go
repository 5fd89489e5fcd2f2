package federation

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const discordAPIURL = "https://discord.com/api"

var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type DiscordProvider struct {
	oauthProvider
	apiURL string
}

func NewDiscordProvider(clientID, clientSecret, redirectURL string, endpoint *oauth2.Endpoint, apiURL string) *DiscordProvider {
	if endpoint == nil {
		endpoint = &discordEndpoint
	}
	if apiURL == "" {
		apiURL = discordAPIURL
	}
	return &DiscordProvider{
		oauthProvider: oauthProvider{config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     *endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify", "email"},
		}},
		apiURL: apiURL,
	}
}

func (p *DiscordProvider) Name() string {
	return Discord
}

func (p *DiscordProvider) Exchange(ctx context.Context, code, verifier string) (*Identity, error) {
	client, err := p.client(ctx, code, verifier)
	if err != nil {
		return nil, errors.Wrap(err, "[DiscordProvider.Exchange]")
	}

	var user struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, p.apiURL+"/users/@me", &user); err != nil {
		return nil, errors.Wrap(err, "[DiscordProvider.Exchange]")
	}
	if user.ID == "" || user.Email == "" {
		return nil, errors.New("[DiscordProvider.Exchange] account has no email")
	}
	return &Identity{
		ProviderUserID: user.ID,
		Email:          user.Email,
		EmailVerified:  user.Verified,
		Username:       user.Username,
		Name:           user.GlobalName,
	}, nil
}
