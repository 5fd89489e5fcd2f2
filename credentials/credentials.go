package credentials

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/jrsteele09/go-auth-hub/users"
)

// Kind tags a Credential.
type Kind int

const (
	KindTOTP Kind = iota + 1
	KindPasskey
	KindSecurityKey
)

// COSE algorithm identifiers accepted for WebAuthn credentials.
const (
	AlgES256 = int(webauthncose.AlgES256)
	AlgRS256 = int(webauthncose.AlgRS256)
)

func (k Kind) String() string {
	switch k {
	case KindTOTP:
		return "totp"
	case KindPasskey:
		return "passkey"
	case KindSecurityKey:
		return "security_key"
	default:
		return "unknown"
	}
}

func (k Kind) IsWebAuthn() bool {
	return k == KindPasskey || k == KindSecurityKey
}

// Factor maps the kind onto the user's factor flags.
func (k Kind) Factor() users.Factor {
	switch k {
	case KindTOTP:
		return users.FactorTOTP
	case KindPasskey:
		return users.FactorPasskey
	case KindSecurityKey:
		return users.FactorSecurityKey
	default:
		return users.FactorNone
	}
}

// Credential is a second factor owned by one user.
//
// For KindTOTP the KeyMaterial is the encrypted seed and ID is empty. For the
// WebAuthn kinds ID is the authenticator issued credential id and KeyMaterial is
// the public key: an uncompressed SEC1 point for ES256, PKCS#1 DER for RS256.
type Credential struct {
	ID          []byte
	UserID      string
	Kind        Kind
	Algorithm   int
	KeyMaterial []byte
	Name        string
	CreatedAt   time.Time
}
