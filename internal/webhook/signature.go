package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureInvalid means the payload did not come from the provider.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// Verifier checks the provider's HMAC-SHA512 signature over the raw request body.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier keyed with the provider secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the hex signature the provider would send for body.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body. body must be the bytes as
// received; re-encoded JSON will not match. A missing secret, a missing or
// malformed signature all verify as false.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	claimed, err := hex.DecodeString(signature)
	if err != nil || len(claimed) != sha512.Size {
		return false
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), claimed)
}
