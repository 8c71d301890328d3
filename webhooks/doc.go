// Package webhooks signs outbound relay payloads and verifies them on the
// receiving side.
//
// The signature is HMAC-SHA256 over "<unix timestamp>.<raw body>" using the
// subscription secret, sent hex encoded as "sha256=<hex>" next to the
// timestamp header. Receivers should reject stale timestamps.
package webhooks
