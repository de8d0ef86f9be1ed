package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const Header = "X-Webhook-Signature"

// HMACVerifier checks a hex HMAC-SHA256 of the raw request body. The header
// value may carry a "sha256=" prefix.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(body []byte, sig string) bool {
	if len(v.secret) == 0 {
		return false
	}
	sig = strings.TrimPrefix(strings.TrimSpace(sig), "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, v.Sign(body))
}

func (v *HMACVerifier) Sign(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHex is the header value a sender would attach to body.
func (v *HMACVerifier) SignHex(body []byte) string {
	return "sha256=" + hex.EncodeToString(v.Sign(body))
}
