package encryption

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// KeySource resolves the current encryption key.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// EnvKeySource reads a base64 key from an environment variable on every call.
type EnvKeySource struct {
	Var string
}

func (s EnvKeySource) Key(context.Context) ([]byte, error) {
	value := strings.TrimSpace(os.Getenv(s.Var))
	if value == "" {
		return nil, errors.Errorf("[EnvKeySource.Key] %s is not set", s.Var)
	}
	return decodeKey(value)
}

// StaticKeySource always returns the same key.
type StaticKeySource []byte

func (s StaticKeySource) Key(context.Context) ([]byte, error) {
	return []byte(s), nil
}

// GenerateKey returns a fresh base64 encoded AES-128 key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", errors.Wrap(err, "[encryption.GenerateKey] failed to read random bytes")
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(value string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, errors.Wrap(err, "[encryption] key is not valid base64")
	}
	return key, nil
}
