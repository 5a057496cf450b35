// Package webhook authenticates inbound change notifications from the
// storage provider.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request
// body, keyed with the shared app secret.
const SignatureHeader = "X-Dropbox-Signature"

// Verifier checks notification signatures. The secret is handed in at
// construction; nothing is read from ambient globals.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier keyed with the shared app secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether signatureHex is the HMAC-SHA256 of body under the
// shared secret. The comparison is constant time. An empty or undecodable
// header is a rejection, never an error.
func (v *Verifier) Verify(body []byte, signatureHex string) bool {
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)

	return hmac.Equal(provided, mac.Sum(nil))
}

// Sign returns the hex signature for body. Used by tests and by the
// provider simulator script.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
