package utils

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

var lowerBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeBase32LowerNoPadding encodes b as lowercase base32 without padding.
func EncodeBase32LowerNoPadding(b []byte) string {
	return lowerBase32.EncodeToString(b)
}

// RandomID returns a lowercase base32 identifier built from n random bytes.
func RandomID(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return EncodeBase32LowerNoPadding(b), nil
}

// RandomOTP returns an 8 character one-time code (5 random bytes, base32 upper case).
func RandomOTP() (string, error) {
	b, err := RandomBytes(5)
	if err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b), nil
}

// RandomRecoveryCode returns a 16 character recovery code (10 random bytes, base32 upper case).
func RandomRecoveryCode() (string, error) {
	b, err := RandomBytes(10)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)), nil
}
