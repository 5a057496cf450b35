package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signWith(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	verifier := NewVerifier("app-secret")
	body := []byte(`{"delta":{"users":["u1"]}}`)

	assert.True(t, verifier.Verify(body, signWith("app-secret", body)))
}

func TestVerifyRejectsAnyFlippedBodyByte(t *testing.T) {
	verifier := NewVerifier("app-secret")
	body := []byte(`{"delta":{"users":["u1"]}}`)
	signature := signWith("app-secret", body)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		assert.False(t, verifier.Verify(tampered, signature),
			"tampered byte %d accepted", i)
	}
}

func TestVerifyRejections(t *testing.T) {
	verifier := NewVerifier("app-secret")
	body := []byte("payload")

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"not hex", "zzzz"},
		{"wrong secret", signWith("other-secret", body)},
		{"truncated", signWith("app-secret", body)[:10]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, verifier.Verify(body, tt.signature))
		})
	}
}

func TestSignRoundTrips(t *testing.T) {
	verifier := NewVerifier("app-secret")
	body := []byte("payload")

	assert.True(t, verifier.Verify(body, verifier.Sign(body)))
}
