// Package signature authenticates inbound Zalo OA webhook calls.
//
// A request is accepted only when it carries the deployment's app ID, a
// declared timestamp within the tolerance window and a MAC computed over the
// exact received bytes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the accepted skew between the declared timestamp and now.
const DefaultTolerance = 5 * time.Minute

// millisecondThreshold separates second and millisecond epoch values.
const millisecondThreshold = 1_000_000_000_000

type Scheme string

const (
	// SchemeHMACSHA256 signs app_id + body + timestamp with HMAC-SHA256.
	SchemeHMACSHA256 Scheme = "hmac-sha256"
	// SchemeZalo is the platform's documented MAC:
	// sha256(app_id + body + timestamp + secret).
	SchemeZalo Scheme = "zalo"
)

func ParseScheme(raw string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SchemeHMACSHA256:
		return SchemeHMACSHA256, nil
	case SchemeZalo:
		return SchemeZalo, nil
	default:
		return "", fmt.Errorf("unknown signature scheme %q", raw)
	}
}

type Result int

const (
	Valid Result = iota
	InvalidSignature
	StaleTimestamp
	AppMismatch
	MalformedHeaders
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case InvalidSignature:
		return "invalid_signature"
	case StaleTimestamp:
		return "stale_timestamp"
	case AppMismatch:
		return "app_mismatch"
	case MalformedHeaders:
		return "malformed_headers"
	default:
		return "unknown"
	}
}

// Context is what the sender declares about a request.
type Context struct {
	Signature string
	// Timestamp is the raw token exactly as it appeared in the request.
	Timestamp string
	AppID     string
}

// Verifier holds the deployment's credentials. It has no mutable state and is
// safe for concurrent use.
type Verifier struct {
	AppID     string
	Secret    string
	Tolerance time.Duration
	Scheme    Scheme
}

func NewVerifier(appID, secret string, tolerance time.Duration, scheme Scheme) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if scheme == "" {
		scheme = SchemeHMACSHA256
	}
	return &Verifier{
		AppID:     strings.TrimSpace(appID),
		Secret:    secret,
		Tolerance: tolerance,
		Scheme:    scheme,
	}
}

// Verify checks sc against body. The checks run in a fixed order so the
// returned reason is deterministic: header presence, app ID, freshness, digest.
func (v *Verifier) Verify(body []byte, sc Context, now time.Time) Result {
	sig := strings.TrimSpace(sc.Signature)
	token := strings.TrimSpace(sc.Timestamp)
	appID := strings.TrimSpace(sc.AppID)
	if sig == "" || token == "" || appID == "" {
		return MalformedHeaders
	}
	declared, err := ParseTimestamp(token)
	if err != nil {
		return MalformedHeaders
	}

	if subtle.ConstantTimeCompare([]byte(appID), []byte(v.AppID)) != 1 {
		return AppMismatch
	}

	skew := now.Sub(time.Unix(declared, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.Tolerance {
		return StaleTimestamp
	}

	if v.Secret == "" {
		return InvalidSignature
	}
	expected := Sign(v.Scheme, v.AppID, v.Secret, body, token)
	if subtle.ConstantTimeCompare([]byte(stripPrefix(sig)), []byte(expected)) != 1 {
		return InvalidSignature
	}
	return Valid
}

// Sign returns the lowercase hex MAC a sender attaches for body.
func (v *Verifier) Sign(body []byte, timestamp string) string {
	return Sign(v.Scheme, v.AppID, v.Secret, body, timestamp)
}

func Sign(scheme Scheme, appID, secret string, body []byte, timestamp string) string {
	switch scheme {
	case SchemeZalo:
		h := sha256.New()
		h.Write([]byte(appID))
		h.Write(body)
		h.Write([]byte(timestamp))
		h.Write([]byte(secret))
		return hex.EncodeToString(h.Sum(nil))
	default:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(appID))
		mac.Write(body)
		mac.Write([]byte(timestamp))
		return hex.EncodeToString(mac.Sum(nil))
	}
}

var errInvalidTimestamp = errors.New("invalid timestamp")

// ParseTimestamp converts a declared epoch token to seconds. Millisecond
// values, the platform's native unit, are truncated to seconds.
func ParseTimestamp(raw string) (int64, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return 0, errInvalidTimestamp
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, errInvalidTimestamp
	}
	if v >= millisecondThreshold {
		v /= 1000
	}
	return v, nil
}

// stripPrefix removes the "mac=" or "sha256=" labels some senders prepend.
func stripPrefix(sig string) string {
	for _, prefix := range []string{"mac=", "sha256="} {
		if strings.HasPrefix(sig, prefix) {
			return strings.TrimPrefix(sig, prefix)
		}
	}
	return sig
}
