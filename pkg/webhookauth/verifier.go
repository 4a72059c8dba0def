package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	secretPrefix    = "whsec_"
	signatureScheme = "v1,"
)

// Verifier checks provider webhook signatures. The scheme is a timestamped
// HMAC: base64(HMAC-SHA256(secret, "{id}.{timestamp}.{body}")) carried in
// the webhook-signature header with a "v1," prefix. The signing key is the
// base64-decoded secret after stripping the "whsec_" prefix.
type Verifier struct {
	key []byte
}

// New builds a Verifier from the configured secret. An empty secret yields
// a permissive verifier that accepts everything: signature checking is
// opt-in. A secret that is not valid base64 is used as raw key bytes.
func New(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	trimmed := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		key = []byte(trimmed)
	}
	return &Verifier{key: key}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool { return len(v.key) > 0 }

// Verify checks the signature header against the request. Missing headers
// fail the check; no configured secret passes unconditionally. The header
// may carry several space-separated signatures; any match passes.
func (v *Verifier) Verify(webhookID, timestamp, signature string, body []byte) bool {
	if !v.Enabled() {
		return true
	}
	if webhookID == "" || timestamp == "" || signature == "" {
		return false
	}

	expected := v.sign(webhookID, timestamp, body)
	for _, candidate := range strings.Fields(signature) {
		candidate = strings.TrimPrefix(candidate, signatureScheme)
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return true
		}
	}
	return false
}

// Sign produces the signature value for the given parts. Exposed for tests
// and for constructing outbound requests against sandbox receivers.
func (v *Verifier) Sign(webhookID, timestamp string, body []byte) string {
	return signatureScheme + v.sign(webhookID, timestamp, body)
}

func (v *Verifier) sign(webhookID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.%s", webhookID, timestamp, body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
