package users_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/users"
)

func TestPreferredFactor(t *testing.T) {
	cases := []struct {
		name    string
		factors users.Factors
		want    users.Factor
	}{
		{"none", users.Factors{}, users.FactorNone},
		{"totp only", users.Factors{TOTP: true}, users.FactorTOTP},
		{"security key only", users.Factors{SecurityKey: true}, users.FactorSecurityKey},
		{"security key beats totp", users.Factors{TOTP: true, SecurityKey: true}, users.FactorSecurityKey},
		{"passkey beats everything", users.Factors{TOTP: true, SecurityKey: true, Passkey: true}, users.FactorPasskey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.factors.Preferred())
			require.Equal(t, tc.want != users.FactorNone, tc.factors.Registered2FA())
		})
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	policy := users.DefaultPasswordPolicy()

	require.NoError(t, users.ValidatePasswordStrength("Str0ng!Pass", policy))
	require.Error(t, users.ValidatePasswordStrength("Sh0r!", policy))
	require.Error(t, users.ValidatePasswordStrength("str0ng!pass", policy))
	require.Error(t, users.ValidatePasswordStrength("STR0NG!PASS", policy))
	require.Error(t, users.ValidatePasswordStrength("Strong!Pass", policy))
	require.Error(t, users.ValidatePasswordStrength("Str0ngPass", policy))

	relaxed := users.PasswordPolicy{MinLength: 4}
	require.NoError(t, users.ValidatePasswordStrength("abcd", relaxed))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := users.HashPassword("Str0ng!Pass")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash("Str0ng!Pass", hash))
	require.False(t, users.CheckPasswordHash("wrong", hash))
	require.False(t, users.CheckPasswordHash("anything", ""))
}

func TestInputValidation(t *testing.T) {
	require.True(t, users.VerifyUsernameInput("alice"))
	require.False(t, users.VerifyUsernameInput("bob"))
	require.False(t, users.VerifyUsernameInput(" alice"))
	require.False(t, users.VerifyUsernameInput("a-very-long-username-that-exceeds"))

	require.True(t, users.VerifyEmailInput("a@b.com"))
	require.False(t, users.VerifyEmailInput("a@b"))
	require.False(t, users.VerifyEmailInput("not-an-email"))
	require.False(t, users.VerifyEmailInput("Alice <a@b.com>"))
}

func TestGenerateID(t *testing.T) {
	id, err := users.GenerateID()
	require.NoError(t, err)
	require.Len(t, id, 24)
}
