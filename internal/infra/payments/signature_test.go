package payments

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/apperr"
)

var (
	secret = []byte("whsec_test")
	body   = []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
)

func signedHeader(t int64) string {
	return fmt.Sprintf("t=%d,v1=%s", t, ComputeSignature(secret, t, body))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_717_200_000, 0)
	v := SignatureVerifier{Secret: secret, Tolerance: 5 * time.Minute}
	assert.NoError(t, v.Verify(signedHeader(now.Unix()), body, now))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_717_200_000, 0)
	v := SignatureVerifier{Secret: secret, Tolerance: 5 * time.Minute}
	err := v.Verify(signedHeader(now.Unix()), []byte(`{"id":"evt_2"}`), now)
	assert.True(t, apperr.IsAuthentication(err))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1_717_200_000, 0)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), ComputeSignature([]byte("other"), now.Unix(), body))
	v := SignatureVerifier{Secret: secret, Tolerance: 5 * time.Minute}
	assert.True(t, apperr.IsAuthentication(v.Verify(header, body, now)))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_717_200_000, 0)
	stale := now.Add(-10 * time.Minute).Unix()
	v := SignatureVerifier{Secret: secret, Tolerance: 5 * time.Minute}
	assert.True(t, apperr.IsAuthentication(v.Verify(signedHeader(stale), body, now)))
}

func TestVerifyRejectsMissingOrMalformedHeader(t *testing.T) {
	now := time.Unix(1_717_200_000, 0)
	v := SignatureVerifier{Secret: secret, Tolerance: 5 * time.Minute}
	assert.True(t, apperr.IsAuthentication(v.Verify("", body, now)))
	assert.True(t, apperr.IsAuthentication(v.Verify("v1=abc", body, now)))
	assert.True(t, apperr.IsAuthentication(v.Verify("t=notanumber,v1=abc", body, now)))
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_42",
		"type": "payment_intent.succeeded",
		"data": {
			"payment_intent_id": "pi_1",
			"booking_id": "bkg-1",
			"amount_cents": 35000,
			"currency": "USD"
		}
	}`)
	cmd, err := ParseEvent(payload, time.Unix(1_717_200_000, 0))
	require.NoError(t, err)
	assert.Equal(t, "evt_42", cmd.EventID)
	assert.Equal(t, "payment_intent.succeeded", cmd.EventType)
	assert.Equal(t, "pi_1", cmd.IntentID)
	assert.Equal(t, int64(35000), cmd.AmountCents)
	assert.Equal(t, payload, cmd.Raw)
}

func TestParseEventRejectsGarbage(t *testing.T) {
	_, err := ParseEvent([]byte("not json"), time.Now())
	assert.True(t, apperr.IsValidation(err))

	_, err = ParseEvent([]byte(`{"type":"x"}`), time.Now())
	assert.True(t, apperr.IsValidation(err))
}
