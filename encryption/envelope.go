package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

const (
	KeySize   = 16
	IVSize    = 16
	TagSize   = 16
	minLength = IVSize + 1 + TagSize
)

// Envelope seals payloads as IV(16) || ciphertext || tag(16) using AES-128-GCM.
// The key is fetched from the KeySource on every call so a rotated secret takes
// effect without a restart.
type Envelope struct {
	keys KeySource
}

func New(keys KeySource) (*Envelope, error) {
	if keys == nil {
		return nil, errors.New("[encryption.New] key source is required")
	}
	return &Envelope{keys: keys}, nil
}

func (e *Envelope) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	gcm, err := e.aead(ctx)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, "[Envelope.Encrypt] failed to generate iv")
	}
	out := make([]byte, 0, IVSize+len(plaintext)+TagSize)
	out = append(out, iv...)
	return gcm.Seal(out, iv, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. A short blob or a failed tag check is
// reported as a crypto failure, never as an empty plaintext.
func (e *Envelope) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	if len(blob) < minLength {
		return nil, errors.Wrapf(apperrors.ErrCryptoFailure, "[Envelope.Decrypt] blob of %d bytes is too short", len(blob))
	}
	gcm, err := e.aead(ctx)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, blob[:IVSize], blob[IVSize:], nil)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrCryptoFailure, "[Envelope.Decrypt] authentication failed")
	}
	return plaintext, nil
}

func (e *Envelope) EncryptString(ctx context.Context, s string) ([]byte, error) {
	return e.Encrypt(ctx, []byte(s))
}

func (e *Envelope) DecryptToString(ctx context.Context, blob []byte) (string, error) {
	b, err := e.Decrypt(ctx, blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (e *Envelope) aead(ctx context.Context) (cipher.AEAD, error) {
	key, err := e.keys.Key(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Envelope] failed to resolve encryption key")
	}
	if len(key) != KeySize {
		return nil, errors.Wrapf(apperrors.ErrInternal, "[Envelope] encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[Envelope] failed to create cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, errors.Wrap(err, "[Envelope] failed to create gcm")
	}
	return gcm, nil
}
