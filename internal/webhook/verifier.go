// Package webhook authenticates, classifies and decodes platform webhook
// deliveries. Nothing in it touches storage.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrMissingSecret is returned when a verifier is built without a secret.
var ErrMissingSecret = errors.New("webhook secret is not configured")

// Verifier checks the base64 HMAC-SHA256 signature the platform attaches to
// every delivery. The secret is fixed at construction.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify reports whether signature matches body. body must be the exact bytes
// read from the wire.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if v == nil || len(v.secret) == 0 || signature == "" {
		return false
	}
	expected := sign(v.secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Verify is the stateless form of Verifier.Verify.
func Verify(secret string, body []byte, signature string) bool {
	v, err := NewVerifier(secret)
	if err != nil {
		return false
	}
	return v.Verify(body, signature)
}

// Sign returns the signature the platform would send for body.
func Sign(secret string, body []byte) string {
	return sign([]byte(secret), body)
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
