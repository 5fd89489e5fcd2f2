package credentials

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"math/big"

	"github.com/pkg/errors"
)

const p256CoordSize = 32

// EncodeES256PublicKey validates (x, y) as a P-256 point and returns its
// uncompressed SEC1 encoding.
func EncodeES256PublicKey(x, y []byte) ([]byte, error) {
	if len(x) > p256CoordSize || len(y) > p256CoordSize {
		return nil, errors.New("[EncodeES256PublicKey] coordinate too long")
	}
	point := make([]byte, 1+2*p256CoordSize)
	point[0] = 0x04
	copy(point[1+p256CoordSize-len(x):1+p256CoordSize], x)
	copy(point[1+2*p256CoordSize-len(y):], y)

	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, errors.Wrap(err, "[EncodeES256PublicKey] invalid point")
	}
	return point, nil
}

// EncodeRS256PublicKey returns the PKCS#1 DER encoding of the RSA key (n, e).
func EncodeRS256PublicKey(modulus, exponent []byte) ([]byte, error) {
	if len(modulus) == 0 || len(exponent) == 0 {
		return nil, errors.New("[EncodeRS256PublicKey] modulus and exponent are required")
	}
	e := new(big.Int).SetBytes(exponent)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, errors.New("[EncodeRS256PublicKey] unsupported exponent")
	}
	key := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}
	return x509.MarshalPKCS1PublicKey(key), nil
}

// VerifySignature checks signature over message with a stored public key.
// A malformed key is an error; a bad signature is false.
func VerifySignature(algorithm int, key, message, signature []byte) (bool, error) {
	digest := sha256.Sum256(message)

	switch algorithm {
	case AlgES256:
		pub, err := parseES256PublicKey(key)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(pub, digest[:], signature), nil
	case AlgRS256:
		pub, err := x509.ParsePKCS1PublicKey(key)
		if err != nil {
			return false, errors.Wrap(err, "[VerifySignature] parse RS256 key")
		}
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature) == nil, nil
	default:
		return false, errors.Errorf("[VerifySignature] unsupported algorithm %d", algorithm)
	}
}

func parseES256PublicKey(point []byte) (*ecdsa.PublicKey, error) {
	ecdhKey, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, errors.Wrap(err, "[VerifySignature] parse ES256 key")
	}
	der, err := x509.MarshalPKIXPublicKey(ecdhKey)
	if err != nil {
		return nil, errors.Wrap(err, "[VerifySignature] marshal ES256 key")
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "[VerifySignature] reparse ES256 key")
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("[VerifySignature] not an ECDSA key")
	}
	return pub, nil
}
