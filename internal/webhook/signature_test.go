package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const body = `{"event":"charge.success","data":{"reference":"R1","amount":1000}}`

func TestVerifier(t *testing.T) {
	v := NewVerifier("sk_test_secret")
	sig := v.Sign([]byte(body))

	assert.True(t, v.Verify([]byte(body), sig))
	assert.True(t, v.Verify([]byte(body), strings.ToUpper(sig)), "hex case does not matter")

	tests := []struct {
		name string
		v    *Verifier
		body string
		sig  string
	}{
		{"tampered body", v, strings.Replace(body, "1000", "9000", 1), sig},
		{"reformatted body", v, `{"event": "charge.success", "data": {"reference": "R1", "amount": 1000}}`, sig},
		{"missing header", v, body, ""},
		{"not hex", v, body, "zz" + sig[2:]},
		{"truncated", v, body, sig[:64]},
		{"other secret", NewVerifier("sk_other"), body, sig},
		{"missing secret", NewVerifier(""), body, NewVerifier("").Sign([]byte(body))},
		{"nil verifier", nil, body, sig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.v.Verify([]byte(tt.body), tt.sig))
		})
	}
}
