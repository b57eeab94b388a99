package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/agentmesh/core/internal/resilience"
)

const signaturePrefix = "sha256="

// VerifySignature checks header against the HMAC-SHA256 of payload using
// secret: reject if no secret is configured, the header is missing, the
// prefix is wrong, the hex length differs, or the constant-time
// comparison fails.
func VerifySignature(secret, header string, payload []byte) error {
	if secret == "" {
		return &resilience.InvalidSignatureError{Reason: "no secret configured"}
	}
	if header == "" {
		return &resilience.InvalidSignatureError{Reason: "missing signature header"}
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return &resilience.InvalidSignatureError{Reason: "wrong prefix"}
	}

	gotHex := strings.TrimPrefix(header, signaturePrefix)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	wantHex := hex.EncodeToString(mac.Sum(nil))

	if len(gotHex) != len(wantHex) {
		return &resilience.InvalidSignatureError{Reason: "hex length mismatch"}
	}
	if subtle.ConstantTimeCompare([]byte(gotHex), []byte(wantHex)) != 1 {
		return &resilience.InvalidSignatureError{Reason: "signature mismatch"}
	}
	return nil
}
