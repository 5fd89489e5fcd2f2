// Package webauthntest provides a software authenticator that produces "none"
// attestations and signed assertions for tests.
package webauthntest

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
	flagAttestedData = 0x40
)

// Attestation mirrors the registration wire fields.
type Attestation struct {
	AttestationObject string
	ClientDataJSON    string
}

// Assertion mirrors the authentication wire fields.
type Assertion struct {
	CredentialID      string
	AuthenticatorData string
	ClientDataJSON    string
	Signature         string
}

// ClientData is the JSON the browser would hand to the authenticator.
type ClientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin,omitempty"`
}

// Authenticator holds one credential key pair.
type Authenticator struct {
	CredentialID []byte
	RPID         string
	Format       string
	UserPresent  bool
	UserVerified bool
	SignCount    uint32

	ecKey  *ecdsa.PrivateKey
	rsaKey *rsa.PrivateKey
}

// NewES256 returns an authenticator with a fresh P-256 key.
func NewES256(rpID string) (*Authenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	a, err := newAuthenticator(rpID)
	if err != nil {
		return nil, err
	}
	a.ecKey = key
	return a, nil
}

// NewRS256 returns an authenticator with a fresh 2048 bit RSA key.
func NewRS256(rpID string) (*Authenticator, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	a, err := newAuthenticator(rpID)
	if err != nil {
		return nil, err
	}
	a.rsaKey = key
	return a, nil
}

func newAuthenticator(rpID string) (*Authenticator, error) {
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return &Authenticator{
		CredentialID: id,
		RPID:         rpID,
		Format:       "none",
		UserPresent:  true,
		UserVerified: true,
	}, nil
}

// CredentialIDBase64 is the id as sent on the wire.
func (a *Authenticator) CredentialIDBase64() string {
	return base64.StdEncoding.EncodeToString(a.CredentialID)
}

// COSEKey returns the public key as a COSE_Key.
func (a *Authenticator) COSEKey() ([]byte, error) {
	if a.rsaKey != nil {
		return webauthncbor.Marshal(map[int]interface{}{
			1:  3,
			3:  int(webauthncose.AlgRS256),
			-1: a.rsaKey.N.Bytes(),
			-2: big.NewInt(int64(a.rsaKey.E)).Bytes(),
		})
	}
	x := make([]byte, 32)
	y := make([]byte, 32)
	a.ecKey.X.FillBytes(x)
	a.ecKey.Y.FillBytes(y)
	return webauthncbor.Marshal(map[int]interface{}{
		1:  2,
		3:  int(webauthncose.AlgES256),
		-1: 1,
		-2: x,
		-3: y,
	})
}

// ClientDataFor builds client data for the given ceremony type.
func ClientDataFor(ceremony string, challenge []byte, origin string) ClientData {
	return ClientData{
		Type:      ceremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}
}

// Attest produces a registration response for challenge at origin.
func (a *Authenticator) Attest(challenge []byte, origin string) (Attestation, error) {
	return a.AttestWithClientData(ClientDataFor("webauthn.create", challenge, origin))
}

func (a *Authenticator) AttestWithClientData(clientData ClientData) (Attestation, error) {
	authData, err := a.AuthenticatorData(true)
	if err != nil {
		return Attestation{}, err
	}
	object, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      a.Format,
		"attStmt":  map[string]interface{}{},
	})
	if err != nil {
		return Attestation{}, err
	}
	clientDataJSON, err := json.Marshal(clientData)
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{
		AttestationObject: base64.StdEncoding.EncodeToString(object),
		ClientDataJSON:    base64.StdEncoding.EncodeToString(clientDataJSON),
	}, nil
}

// Assert produces a signed authentication response for challenge at origin.
func (a *Authenticator) Assert(challenge []byte, origin string) (Assertion, error) {
	return a.AssertWithClientData(ClientDataFor("webauthn.get", challenge, origin))
}

func (a *Authenticator) AssertWithClientData(clientData ClientData) (Assertion, error) {
	a.SignCount++
	authData, err := a.AuthenticatorData(false)
	if err != nil {
		return Assertion{}, err
	}
	clientDataJSON, err := json.Marshal(clientData)
	if err != nil {
		return Assertion{}, err
	}
	clientDataHash := sha256.Sum256(clientDataJSON)
	signature, err := a.Sign(append(append([]byte{}, authData...), clientDataHash[:]...))
	if err != nil {
		return Assertion{}, err
	}
	return Assertion{
		CredentialID:      a.CredentialIDBase64(),
		AuthenticatorData: base64.StdEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.StdEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// Sign signs SHA-256(message) with the credential key.
func (a *Authenticator) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	if a.rsaKey != nil {
		return rsa.SignPKCS1v15(rand.Reader, a.rsaKey, crypto.SHA256, digest[:])
	}
	return ecdsa.SignASN1(rand.Reader, a.ecKey, digest[:])
}

// AuthenticatorData builds rpIdHash || flags || signCount, followed by the
// attested credential data when withCredential is set.
func (a *Authenticator) AuthenticatorData(withCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	rpIDHash := sha256.Sum256([]byte(a.RPID))
	buf.Write(rpIDHash[:])

	var flags byte
	if a.UserPresent {
		flags |= flagUserPresent
	}
	if a.UserVerified {
		flags |= flagUserVerified
	}
	if withCredential {
		flags |= flagAttestedData
	}
	buf.WriteByte(flags)

	counter := make([]byte, 4)
	binary.BigEndian.PutUint32(counter, a.SignCount)
	buf.Write(counter)

	if withCredential {
		buf.Write(make([]byte, 16))
		idLen := make([]byte, 2)
		binary.BigEndian.PutUint16(idLen, uint16(len(a.CredentialID)))
		buf.Write(idLen)
		buf.Write(a.CredentialID)

		key, err := a.COSEKey()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
	}
	return buf.Bytes(), nil
}
