package users

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-auth-hub/internal/utils"
)

// Role is ordered: a higher value includes the permissions of the lower ones.
type Role int

const (
	RoleReadonly  Role = 0
	RoleUser      Role = 1000
	RoleModerator Role = 2000
	RoleAdmin     Role = 3000
)

// Factor names a second factor kind.
type Factor string

const (
	FactorNone        Factor = ""
	FactorPasskey     Factor = "passkey"
	FactorSecurityKey Factor = "security-key"
	FactorTOTP        Factor = "totp"
)

// Factors records which second factors a user has registered. It is derived from
// credential existence by the store, never set by hand.
type Factors struct {
	TOTP        bool `json:"registered_totp"`
	Passkey     bool `json:"registered_passkey"`
	SecurityKey bool `json:"registered_security_key"`
}

func (f Factors) Registered2FA() bool {
	return f.TOTP || f.Passkey || f.SecurityKey
}

// Preferred picks the factor to challenge for: passkey, then security key, then TOTP.
func (f Factors) Preferred() Factor {
	switch {
	case f.Passkey:
		return FactorPasskey
	case f.SecurityKey:
		return FactorSecurityKey
	case f.TOTP:
		return FactorTOTP
	default:
		return FactorNone
	}
}

type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	Name          string     `json:"name,omitempty"`
	PasswordHash  string     `json:"-"` // empty for accounts created through a federated login
	RecoveryCode  []byte     `json:"-"` // encrypted
	Role          Role       `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	Factors       Factors    `json:"factors"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

func (u *User) Registered2FA() bool {
	return u.Factors.Registered2FA()
}

func (u *User) IsAdmin() bool {
	return u.Role >= RoleAdmin
}

// PasswordPolicy describes the character classes a new password must contain.
type PasswordPolicy struct {
	MinLength int  `json:"length"`
	Uppercase bool `json:"uppercase"`
	Lowercase bool `json:"lowercase"`
	Numbers   bool `json:"numbers"`
	Symbols   bool `json:"symbols"`
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, Uppercase: true, Lowercase: true, Numbers: true, Symbols: true}
}

// ValidatePasswordStrength checks password against policy.
func ValidatePasswordStrength(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return fmt.Errorf("password must be at least %d characters long", policy.MinLength)
	}
	if len(password) > 255 {
		return fmt.Errorf("password must be at most 255 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
		hasSymbol bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSymbol = true
		}
	}

	if policy.Uppercase && !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if policy.Lowercase && !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if policy.Numbers && !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	if policy.Symbols && !hasSymbol {
		return fmt.Errorf("password must contain at least one symbol")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// VerifyUsernameInput accepts 4 to 31 characters without surrounding whitespace.
func VerifyUsernameInput(username string) bool {
	return len(username) > 3 && len(username) < 32 && strings.TrimSpace(username) == username
}

func VerifyEmailInput(email string) bool {
	if len(email) >= 256 || strings.TrimSpace(email) != email {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, _ := strings.Cut(email, "@")
	return strings.Contains(domain, ".")
}

// GenerateID returns a new 24 character user id.
func GenerateID() (string, error) {
	return utils.RandomID(15)
}
