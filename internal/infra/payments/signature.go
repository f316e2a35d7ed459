package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"tripnest/internal/apperr"
)

// SignatureHeader is the header carrying the webhook signature, in the
// "t=<unix>,v1=<hex>" format.
const SignatureHeader = "X-Webhook-Signature"

// SignatureVerifier checks webhook authenticity before any payload parsing.
// The signed string is "<t>.<body>" keyed with the shared secret; t protects
// against replay within the tolerance window.
type SignatureVerifier struct {
	Secret    []byte
	Tolerance time.Duration
}

func (v SignatureVerifier) Verify(header string, body []byte, now time.Time) error {
	if len(v.Secret) == 0 {
		return apperr.Authentication("webhook secret not configured")
	}
	ts, sig, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}
	if v.Tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > v.Tolerance || age < -v.Tolerance {
			return apperr.Authentication("webhook signature timestamp outside tolerance")
		}
	}
	expected := ComputeSignature(v.Secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return apperr.Authentication("webhook signature mismatch")
	}
	return nil
}

// ComputeSignature derives the v1 signature for a timestamp and body. Shared
// with tests and the mock delivery tool.
func ComputeSignature(secret []byte, t int64, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(strconv.FormatInt(t, 10)))
	m.Write([]byte("."))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func parseSignatureHeader(header string) (int64, string, error) {
	if header == "" {
		return 0, "", apperr.Authentication("missing webhook signature")
	}
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", apperr.Authentication("malformed webhook signature timestamp")
			}
			ts = parsed
		case "v1":
			sig = value
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", apperr.Authentication("malformed webhook signature header")
	}
	return ts, sig, nil
}
