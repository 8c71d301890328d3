package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	DefaultSignatureHeader  = "X-Webhook-Signature"
	DefaultTimestampHeader  = "X-Webhook-Timestamp"
	DefaultEventTypeHeader  = "X-Event-Type"
	DefaultDeliveryIDHeader = "X-Webhook-Id"
	DefaultSignaturePrefix  = "sha256="
)

// SignedContent is the exact byte sequence covered by the signature:
// "<unix timestamp>.<raw body>".
func SignedContent(timestamp int64, body []byte) []byte {
	prefix := strconv.FormatInt(timestamp, 10) + "."
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	return append(out, body...)
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of the signed content.
func ComputeSignature(secret string, timestamp int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(SignedContent(timestamp, body))
	return mac.Sum(nil)
}

type Signer struct {
	Prefix string
}

func NewSigner(prefix string) Signer {
	return Signer{Prefix: prefix}
}

// Sign returns the header value for the signature header, prefix included.
func (s Signer) Sign(secret string, timestamp int64, body []byte) string {
	return strings.TrimSpace(s.Prefix) + hex.EncodeToString(ComputeSignature(secret, timestamp, body))
}
