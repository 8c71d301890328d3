package webhooks

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SignatureVerifier checks relay signatures on the receiving side.
type SignatureVerifier struct {
	SignatureHeader string
	TimestampHeader string
	Prefix          string
	Secret          string
	Encoding        string // hex | base64
	// Tolerance bounds timestamp skew; zero disables the check.
	Tolerance time.Duration
	Now       func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration) SignatureVerifier {
	return SignatureVerifier{
		SignatureHeader: DefaultSignatureHeader,
		TimestampHeader: DefaultTimestampHeader,
		Prefix:          DefaultSignaturePrefix,
		Secret:          secret,
		Encoding:        "hex",
		Tolerance:       tolerance,
	}
}

func (v SignatureVerifier) Verify(headers http.Header, body []byte) error {
	signatureHeader := firstNonEmpty(v.SignatureHeader, DefaultSignatureHeader)
	timestampHeader := firstNonEmpty(v.TimestampHeader, DefaultTimestampHeader)

	header := strings.TrimSpace(headers.Get(signatureHeader))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", signatureHeader)
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	rawTimestamp := strings.TrimSpace(headers.Get(timestampHeader))
	if rawTimestamp == "" {
		return fmt.Errorf("webhooks: %s timestamp header is required", timestampHeader)
	}
	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("webhooks: invalid timestamp %q: %w", rawTimestamp, err)
	}
	if v.Tolerance > 0 {
		now := time.Now().UTC()
		if v.Now != nil {
			now = v.Now().UTC()
		}
		skew := now.Sub(time.Unix(timestamp, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.Tolerance {
			return fmt.Errorf("webhooks: timestamp outside tolerance (%s)", skew.Round(time.Second))
		}
	}

	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}
	expected := ComputeSignature(secret, timestamp, body)

	var decoded []byte
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

// VerifyRequest reads and verifies the request body, then restores it so
// downstream handlers can read it again.
func (v SignatureVerifier) VerifyRequest(req *http.Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("webhooks: request is required")
	}
	var body []byte
	if req.Body != nil {
		read, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("webhooks: read body: %w", err)
		}
		_ = req.Body.Close()
		body = read
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err := v.Verify(req.Header, body); err != nil {
		return nil, err
	}
	return body, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
