package webauthn_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/challenge"
	"github.com/jrsteele09/go-auth-hub/credentials"
	"github.com/jrsteele09/go-auth-hub/encryption"
	apperrors "github.com/jrsteele09/go-auth-hub/internal/errors"
	"github.com/jrsteele09/go-auth-hub/store/memstore"
	"github.com/jrsteele09/go-auth-hub/webauthn"
	"github.com/jrsteele09/go-auth-hub/webauthn/webauthntest"
)

const (
	rpID   = "auth.example.com"
	origin = "https://auth.example.com"
)

type testFixture struct {
	ctx        context.Context
	challenges *challenge.Store
	registry   *credentials.Registry
	verifier   *webauthn.Verifier
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	key := make([]byte, encryption.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	envelope, err := encryption.New(encryption.StaticKeySource(key))
	require.NoError(t, err)

	f := &testFixture{ctx: context.Background(), challenges: challenge.NewStore()}
	f.registry, err = credentials.NewRegistry(memstore.New().Repos().Credentials, envelope)
	require.NoError(t, err)
	f.verifier, err = webauthn.NewVerifier(rpID, origin, f.challenges, f.registry)
	require.NoError(t, err)
	return f
}

func (f *testFixture) newChallenge(t *testing.T) []byte {
	t.Helper()
	c, err := f.challenges.Create()
	require.NoError(t, err)
	return c
}

func (f *testFixture) register(t *testing.T, a *webauthntest.Authenticator, kind credentials.Kind) *credentials.Credential {
	t.Helper()
	att, err := a.Attest(f.newChallenge(t), origin)
	require.NoError(t, err)
	cred, err := f.verifier.VerifyAttestation(f.ctx, attestationInput(att, kind))
	require.NoError(t, err)
	return cred
}

func attestationInput(att webauthntest.Attestation, kind credentials.Kind) webauthn.AttestationInput {
	return webauthn.AttestationInput{
		UserID:            "u1",
		Kind:              kind,
		Name:              "laptop",
		AttestationObject: att.AttestationObject,
		ClientDataJSON:    att.ClientDataJSON,
	}
}

func assertionInput(a webauthntest.Assertion) webauthn.AssertionInput {
	return webauthn.AssertionInput{
		CredentialID:      a.CredentialID,
		AuthenticatorData: a.AuthenticatorData,
		ClientDataJSON:    a.ClientDataJSON,
		Signature:         a.Signature,
	}
}

func TestAttestationAndAssertion(t *testing.T) {
	newAuthenticators := map[string]func(string) (*webauthntest.Authenticator, error){
		"ES256": webauthntest.NewES256,
		"RS256": webauthntest.NewRS256,
	}
	for name, newAuthenticator := range newAuthenticators {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t)
			a, err := newAuthenticator(rpID)
			require.NoError(t, err)

			cred := f.register(t, a, credentials.KindPasskey)
			require.Equal(t, a.CredentialID, cred.ID)
			require.Equal(t, "u1", cred.UserID)

			assertion, err := a.Assert(f.newChallenge(t), origin)
			require.NoError(t, err)
			got, err := f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindPasskey)
			require.NoError(t, err)
			require.Equal(t, cred.ID, got.ID)

			// Same credential id under another kind is unknown.
			assertion, err = a.Assert(f.newChallenge(t), origin)
			require.NoError(t, err)
			_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
			require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
		})
	}
}

func TestAssertionRejections(t *testing.T) {
	f := setupTestFixture(t)
	a, err := webauthntest.NewES256(rpID)
	require.NoError(t, err)
	f.register(t, a, credentials.KindSecurityKey)

	t.Run("replayed challenge", func(t *testing.T) {
		assertion, err := a.Assert(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.NoError(t, err)

		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("challenge never issued", func(t *testing.T) {
		assertion, err := a.Assert([]byte("not-a-real-challenge"), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("authenticator data not covered by signature", func(t *testing.T) {
		assertion, err := a.Assert(f.newChallenge(t), origin)
		require.NoError(t, err)
		authData, err := base64.StdEncoding.DecodeString(assertion.AuthenticatorData)
		require.NoError(t, err)
		authData[len(authData)-1] ^= 0x01
		assertion.AuthenticatorData = base64.StdEncoding.EncodeToString(authData)

		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("wrong origin", func(t *testing.T) {
		assertion, err := a.Assert(f.newChallenge(t), "https://evil.example.com")
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("cross origin", func(t *testing.T) {
		clientData := webauthntest.ClientDataFor("webauthn.get", f.newChallenge(t), origin)
		clientData.CrossOrigin = true
		assertion, err := a.AssertWithClientData(clientData)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("create ceremony presented as assertion", func(t *testing.T) {
		assertion, err := a.AssertWithClientData(webauthntest.ClientDataFor("webauthn.create", f.newChallenge(t), origin))
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("user not verified", func(t *testing.T) {
		a.UserVerified = false
		defer func() { a.UserVerified = true }()
		assertion, err := a.Assert(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("different relying party", func(t *testing.T) {
		a.RPID = "other.example.com"
		defer func() { a.RPID = rpID }()
		assertion, err := a.Assert(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("signature from another key", func(t *testing.T) {
		other, err := webauthntest.NewES256(rpID)
		require.NoError(t, err)
		other.CredentialID = a.CredentialID
		assertion, err := other.Assert(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAssertion(f.ctx, assertionInput(assertion), credentials.KindSecurityKey)
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})
}

func TestAttestationRejections(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("only the none format", func(t *testing.T) {
		a, err := webauthntest.NewES256(rpID)
		require.NoError(t, err)
		a.Format = "packed"
		att, err := a.Attest(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAttestation(f.ctx, attestationInput(att, credentials.KindPasskey))
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("assertion ceremony presented as attestation", func(t *testing.T) {
		a, err := webauthntest.NewES256(rpID)
		require.NoError(t, err)
		att, err := a.AttestWithClientData(webauthntest.ClientDataFor("webauthn.get", f.newChallenge(t), origin))
		require.NoError(t, err)
		_, err = f.verifier.VerifyAttestation(f.ctx, attestationInput(att, credentials.KindPasskey))
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("replayed attestation", func(t *testing.T) {
		a, err := webauthntest.NewES256(rpID)
		require.NoError(t, err)
		att, err := a.Attest(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAttestation(f.ctx, attestationInput(att, credentials.KindPasskey))
		require.NoError(t, err)
		_, err = f.verifier.VerifyAttestation(f.ctx, attestationInput(att, credentials.KindPasskey))
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.verifier.VerifyAttestation(f.ctx, webauthn.AttestationInput{
			UserID:            "u1",
			Kind:              credentials.KindPasskey,
			AttestationObject: "%%%",
			ClientDataJSON:    "",
		})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})

	t.Run("totp is not a webauthn kind", func(t *testing.T) {
		a, err := webauthntest.NewES256(rpID)
		require.NoError(t, err)
		att, err := a.Attest(f.newChallenge(t), origin)
		require.NoError(t, err)
		_, err = f.verifier.VerifyAttestation(f.ctx, attestationInput(att, credentials.KindTOTP))
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	})
}

func TestAttestationCapAndCollision(t *testing.T) {
	f := setupTestFixture(t)
	var first *webauthntest.Authenticator
	for i := 0; i < credentials.DefaultMaxWebAuthn; i++ {
		a, err := webauthntest.NewES256(rpID)
		require.NoError(t, err)
		f.register(t, a, credentials.KindPasskey)
		if first == nil {
			first = a
		}
	}

	a, err := webauthntest.NewES256(rpID)
	require.NoError(t, err)
	att, err := a.Attest(f.newChallenge(t), origin)
	require.NoError(t, err)
	_, err = f.verifier.VerifyAttestation(f.ctx, attestationInput(att, credentials.KindPasskey))
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	att, err = first.Attest(f.newChallenge(t), origin)
	require.NoError(t, err)
	in := attestationInput(att, credentials.KindPasskey)
	in.UserID = "u2"
	_, err = f.verifier.VerifyAttestation(f.ctx, in)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}
