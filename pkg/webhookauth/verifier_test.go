package webhookauth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_dGVzdC1zaWduaW5nLWtleQ=="

func TestVerify_ValidSignature(t *testing.T) {
	v := New(testSecret)
	body := []byte(`{"event_type":"payment.succeeded"}`)

	sig := v.Sign("msg_1", "1735689600", body)
	require.True(t, v.Verify("msg_1", "1735689600", sig, body))
}

func TestVerify_WithoutSchemePrefix(t *testing.T) {
	v := New(testSecret)
	body := []byte(`{}`)

	sig := v.Sign("msg_1", "1735689600", body)
	bare := sig[len("v1,"):]
	require.True(t, v.Verify("msg_1", "1735689600", bare, body))
}

func TestVerify_TamperedBody(t *testing.T) {
	v := New(testSecret)
	sig := v.Sign("msg_1", "1735689600", []byte(`{"amount":100}`))

	require.False(t, v.Verify("msg_1", "1735689600", sig, []byte(`{"amount":999}`)))
}

func TestVerify_WrongID(t *testing.T) {
	v := New(testSecret)
	body := []byte(`{}`)
	sig := v.Sign("msg_1", "1735689600", body)

	require.False(t, v.Verify("msg_2", "1735689600", sig, body))
}

func TestVerify_MissingHeaders(t *testing.T) {
	v := New(testSecret)
	body := []byte(`{}`)
	sig := v.Sign("msg_1", "1735689600", body)

	require.False(t, v.Verify("", "1735689600", sig, body))
	require.False(t, v.Verify("msg_1", "", sig, body))
	require.False(t, v.Verify("msg_1", "1735689600", "", body))
}

func TestVerify_MultipleSignatures(t *testing.T) {
	v := New(testSecret)
	body := []byte(`{}`)
	good := v.Sign("msg_1", "1735689600", body)

	require.True(t, v.Verify("msg_1", "1735689600", "v1,bogus "+good, body))
	require.False(t, v.Verify("msg_1", "1735689600", "v1,bogus v1,alsobad", body))
}

func TestVerify_NoSecretAcceptsEverything(t *testing.T) {
	v := New("")
	require.False(t, v.Enabled())
	require.True(t, v.Verify("", "", "", []byte("anything")))
}

func TestNew_RawSecretFallback(t *testing.T) {
	// A secret that is not valid base64 is used as raw key bytes.
	raw := New("whsec_not!valid!base64!")
	require.True(t, raw.Enabled())

	body := []byte(`{}`)
	sig := raw.Sign("msg_1", "1735689600", body)
	require.True(t, raw.Verify("msg_1", "1735689600", sig, body))
}

func TestNew_SecretWithoutPrefix(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("test-signing-key"))
	withPrefix := New("whsec_" + key)
	withoutPrefix := New(key)

	body := []byte(`{}`)
	sig := withPrefix.Sign("msg_1", "1735689600", body)
	require.True(t, withoutPrefix.Verify("msg_1", "1735689600", sig, body))
}
