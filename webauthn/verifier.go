package webauthn

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/challenge"
	"github.com/jrsteele09/go-auth-hub/credentials"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
)

const (
	attestationFormatNone = "none"
	coseCurveP256         = 1
)

// AttestationInput is a registration response. The binary fields are standard
// base64.
type AttestationInput struct {
	UserID            string
	Kind              credentials.Kind
	Name              string
	AttestationObject string
	ClientDataJSON    string
}

// AssertionInput is an authentication response. All fields are standard base64.
type AssertionInput struct {
	CredentialID      string
	AuthenticatorData string
	ClientDataJSON    string
	Signature         string
}

// Verifier checks attestations and assertions against a single relying party.
type Verifier struct {
	rpIDHash   [32]byte
	origin     string
	challenges *challenge.Store
	registry   *credentials.Registry
}

func NewVerifier(rpID, origin string, challenges *challenge.Store, registry *credentials.Registry) (*Verifier, error) {
	if rpID == "" {
		return nil, errors.New("[NewVerifier] rpID is required")
	}
	if origin == "" {
		return nil, errors.New("[NewVerifier] origin is required")
	}
	if challenges == nil {
		return nil, errors.New("[NewVerifier] challenge store is required")
	}
	if registry == nil {
		return nil, errors.New("[NewVerifier] credential registry is required")
	}
	return &Verifier{
		rpIDHash:   sha256.Sum256([]byte(rpID)),
		origin:     origin,
		challenges: challenges,
		registry:   registry,
	}, nil
}

// WithRegistry returns a verifier that stores and looks up credentials through
// registry.
func (v *Verifier) WithRegistry(registry *credentials.Registry) *Verifier {
	clone := *v
	clone.registry = registry
	return &clone
}

// rejected logs the reason and returns the one error clients get to see.
func rejected(op, reason string, err error) error {
	log.Debug().Err(err).Str("op", op).Msg("webauthn rejected: " + reason)
	return errors.Wrap(apperrors.ErrInvalidCredential, op)
}

// VerifyAttestation validates a "none" attestation and registers the new
// credential for in.UserID.
func (v *Verifier) VerifyAttestation(ctx context.Context, in AttestationInput) (*credentials.Credential, error) {
	const op = "[Verifier.VerifyAttestation]"

	if !in.Kind.IsWebAuthn() {
		return nil, rejected(op, "kind", nil)
	}
	rawObject, err := base64.StdEncoding.DecodeString(in.AttestationObject)
	if err != nil {
		return nil, rejected(op, "attestation object encoding", err)
	}
	clientDataJSON, err := base64.StdEncoding.DecodeString(in.ClientDataJSON)
	if err != nil {
		return nil, rejected(op, "client data encoding", err)
	}

	var object protocol.AttestationObject
	if err := webauthncbor.Unmarshal(rawObject, &object); err != nil {
		return nil, rejected(op, "attestation object", err)
	}
	if object.Format != attestationFormatNone {
		return nil, rejected(op, "attestation format "+object.Format, nil)
	}
	if err := object.AuthData.Unmarshal(object.RawAuthData); err != nil {
		return nil, rejected(op, "authenticator data", err)
	}
	if err := v.checkAuthenticatorData(&object.AuthData); err != nil {
		return nil, rejected(op, "authenticator data", err)
	}
	if !object.AuthData.Flags.HasAttestedCredentialData() || len(object.AuthData.AttData.CredentialID) == 0 {
		return nil, rejected(op, "attested credential data missing", nil)
	}
	if err := v.checkClientData(clientDataJSON, protocol.CreateCeremony); err != nil {
		return nil, rejected(op, "client data", err)
	}

	algorithm, key, err := encodePublicKey(object.AuthData.AttData.CredentialPublicKey)
	if err != nil {
		return nil, rejected(op, "public key", err)
	}

	cred := &credentials.Credential{
		ID:          object.AuthData.AttData.CredentialID,
		UserID:      in.UserID,
		Kind:        in.Kind,
		Algorithm:   algorithm,
		KeyMaterial: key,
		Name:        in.Name,
	}
	if err := v.registry.CreateWebAuthn(ctx, cred); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return cred, nil
}

// VerifyAssertion validates a signed assertion for a stored credential of the
// given kind and returns that credential.
func (v *Verifier) VerifyAssertion(ctx context.Context, in AssertionInput, kind credentials.Kind) (*credentials.Credential, error) {
	const op = "[Verifier.VerifyAssertion]"

	credentialID, err := base64.StdEncoding.DecodeString(in.CredentialID)
	if err != nil || len(credentialID) == 0 {
		return nil, rejected(op, "credential id encoding", err)
	}
	rawAuthData, err := base64.StdEncoding.DecodeString(in.AuthenticatorData)
	if err != nil {
		return nil, rejected(op, "authenticator data encoding", err)
	}
	clientDataJSON, err := base64.StdEncoding.DecodeString(in.ClientDataJSON)
	if err != nil {
		return nil, rejected(op, "client data encoding", err)
	}
	signature, err := base64.StdEncoding.DecodeString(in.Signature)
	if err != nil {
		return nil, rejected(op, "signature encoding", err)
	}

	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(rawAuthData); err != nil {
		return nil, rejected(op, "authenticator data", err)
	}
	if err := v.checkAuthenticatorData(&authData); err != nil {
		return nil, rejected(op, "authenticator data", err)
	}
	if err := v.checkClientData(clientDataJSON, protocol.AssertCeremony); err != nil {
		return nil, rejected(op, "client data", err)
	}

	cred, err := v.registry.GetWebAuthn(ctx, kind, credentialID)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if cred == nil {
		return nil, rejected(op, "unknown credential", nil)
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	message := make([]byte, 0, len(rawAuthData)+len(clientDataHash))
	message = append(message, rawAuthData...)
	message = append(message, clientDataHash[:]...)

	ok, err := v.registry.Verify(ctx, cred, credentials.Proof{Message: message, Signature: signature})
	if err != nil || !ok {
		return nil, rejected(op, "signature", err)
	}
	return cred, nil
}

func (v *Verifier) checkAuthenticatorData(authData *protocol.AuthenticatorData) error {
	if !bytes.Equal(authData.RPIDHash, v.rpIDHash[:]) {
		return errors.New("rp id hash mismatch")
	}
	if !authData.Flags.UserPresent() {
		return errors.New("user not present")
	}
	if !authData.Flags.UserVerified() {
		return errors.New("user not verified")
	}
	return nil
}

// checkClientData parses the client data, consumes its challenge and checks the
// origin. The challenge is consumed even when a later check fails.
func (v *Verifier) checkClientData(raw []byte, ceremony protocol.CeremonyType) error {
	var clientData protocol.CollectedClientData
	if err := json.Unmarshal(raw, &clientData); err != nil {
		return errors.Wrap(err, "parse")
	}
	if clientData.Type != ceremony {
		return errors.Errorf("type %q", clientData.Type)
	}
	challengeBytes, err := base64.RawURLEncoding.DecodeString(clientData.Challenge)
	if err != nil {
		return errors.Wrap(err, "challenge encoding")
	}
	if !v.challenges.Verify(challengeBytes) {
		return errors.New("unknown challenge")
	}
	if clientData.Origin != v.origin {
		return errors.Errorf("origin %q", clientData.Origin)
	}
	if clientData.CrossOrigin {
		return errors.New("cross origin")
	}
	return nil
}

// encodePublicKey converts a COSE key into the stored representation.
func encodePublicKey(coseKey []byte) (int, []byte, error) {
	parsed, err := webauthncose.ParsePublicKey(coseKey)
	if err != nil {
		return 0, nil, err
	}

	switch key := parsed.(type) {
	case webauthncose.EC2PublicKeyData:
		if key.Algorithm != int64(webauthncose.AlgES256) {
			return 0, nil, errors.Errorf("EC2 algorithm %d", key.Algorithm)
		}
		if key.Curve != coseCurveP256 {
			return 0, nil, errors.Errorf("curve %d", key.Curve)
		}
		encoded, err := credentials.EncodeES256PublicKey(key.XCoord, key.YCoord)
		return credentials.AlgES256, encoded, err
	case webauthncose.RSAPublicKeyData:
		if key.Algorithm != int64(webauthncose.AlgRS256) {
			return 0, nil, errors.Errorf("RSA algorithm %d", key.Algorithm)
		}
		encoded, err := credentials.EncodeRS256PublicKey(key.Modulus, key.Exponent)
		return credentials.AlgRS256, encoded, err
	default:
		return 0, nil, errors.Errorf("unsupported key type %T", parsed)
	}
}
