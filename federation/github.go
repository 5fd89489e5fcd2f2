package federation

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const gitHubAPIURL = "https://api.github.com"

type GitHubProvider struct {
	oauthProvider
	apiURL string
}

func NewGitHubProvider(clientID, clientSecret, redirectURL string, endpoint *oauth2.Endpoint, apiURL string) *GitHubProvider {
	if endpoint == nil {
		endpoint = &github.Endpoint
	}
	if apiURL == "" {
		apiURL = gitHubAPIURL
	}
	return &GitHubProvider{
		oauthProvider: oauthProvider{config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     *endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
		}},
		apiURL: apiURL,
	}
}

func (p *GitHubProvider) Name() string {
	return GitHub
}

// Exchange reads the account and its primary verified email. Accounts without
// one are rejected since the email is what ties them to a local user.
func (p *GitHubProvider) Exchange(ctx context.Context, code, verifier string) (*Identity, error) {
	client, err := p.client(ctx, code, verifier)
	if err != nil {
		return nil, errors.Wrap(err, "[GitHubProvider.Exchange]")
	}

	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, client, p.apiURL+"/user", &user); err != nil {
		return nil, errors.Wrap(err, "[GitHubProvider.Exchange]")
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, p.apiURL+"/user/emails", &emails); err != nil {
		return nil, errors.Wrap(err, "[GitHubProvider.Exchange]")
	}

	identity := &Identity{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Username:       user.Login,
		Name:           user.Name,
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			identity.Email = e.Email
			identity.EmailVerified = true
			break
		}
	}
	if identity.Email == "" {
		return nil, errors.New("[GitHubProvider.Exchange] no primary verified email")
	}
	return identity, nil
}
