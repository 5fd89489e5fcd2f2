package settings

import (
	"context"

	"github.com/jrsteele09/go-auth-hub/users"
)

// Keys of the persisted setting records.
const (
	KeyGitHub   = "github"
	KeyDiscord  = "discord"
	KeyOIDC     = "oidc"
	KeySMTP     = "smtp"
	KeyPassword = "password"
)

// OAuthApp holds the client registration of an OAuth provider.
type OAuthApp struct {
	Enabled      bool   `json:"enabled"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type OIDCApp struct {
	Enabled      bool   `json:"enabled"`
	IssuerURL    string `json:"issuer_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type SMTP struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// Settings is the runtime configuration an administrator can change without a
// restart. Secrets in a snapshot are plaintext; they are only encrypted at rest.
type Settings struct {
	GitHub   OAuthApp
	Discord  OAuthApp
	OIDC     OIDCApp
	SMTP     SMTP
	Password users.PasswordPolicy
}

func Defaults() Settings {
	return Settings{
		SMTP:     SMTP{Port: 587},
		Password: users.DefaultPasswordPolicy(),
	}
}

// Repo stores one JSON document per key.
type Repo interface {
	All(ctx context.Context) (map[string][]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
