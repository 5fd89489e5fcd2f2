package federation

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

const (
	StateCookieName = "oauth_state"
	DefaultStateTTL = 10 * time.Minute
)

// StateClaims travel in the signed state cookie between the redirect to the
// provider and the callback.
type StateClaims struct {
	jwt.RegisteredClaims
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	Provider string `json:"provider"`
}

type StateOption func(*StateCodec)

func WithStateTTL(ttl time.Duration) StateOption {
	return func(c *StateCodec) {
		c.ttl = ttl
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(now func() time.Time) StateOption {
	return func(c *StateCodec) {
		c.nowTime = now
	}
}

// StateCodec signs and checks login state with HS256.
type StateCodec struct {
	secret  []byte
	ttl     time.Duration
	nowTime func() time.Time
}

func NewStateCodec(secret []byte, opts ...StateOption) (*StateCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("[NewStateCodec] secret of at least 16 bytes is required")
	}
	c := &StateCodec{secret: secret, ttl: DefaultStateTTL, nowTime: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoginState is a fresh state value and PKCE verifier plus the signed cookie that
// carries them.
type LoginState struct {
	Cookie    string
	State     string
	Verifier  string
	ExpiresAt time.Time
}

func (c *StateCodec) Issue(provider string) (*LoginState, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, errors.Wrap(err, "[StateCodec.Issue] random state")
	}
	now := c.nowTime()
	ls := &LoginState{
		State:     base64.RawURLEncoding.EncodeToString(raw),
		Verifier:  oauth2.GenerateVerifier(),
		ExpiresAt: now.Add(c.ttl),
	}
	claims := StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ls.ExpiresAt),
		},
		State:    ls.State,
		Verifier: ls.Verifier,
		Provider: provider,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[StateCodec.Issue] sign")
	}
	ls.Cookie = signed
	return ls, nil
}

// Verify checks the cookie against the state the provider echoed back and
// returns the PKCE verifier.
func (c *StateCodec) Verify(cookie, provider, state string) (string, error) {
	invalid := errors.Wrap(apperrors.ErrInvalidCredential, "[StateCodec.Verify]")
	if cookie == "" || state == "" {
		return "", invalid
	}

	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(cookie, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.nowTime), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", invalid
	}
	if claims.Provider != provider || claims.State != state {
		return "", invalid
	}
	return claims.Verifier, nil
}

func SetStateCookie(w http.ResponseWriter, ls *LoginState, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    ls.Cookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  ls.ExpiresAt,
	})
}

func DeleteStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
