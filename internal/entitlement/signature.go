package entitlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds the replay window: events timestamped further
// from now than this are rejected before any state mutation.
const SignatureTolerance = 5 * time.Minute

var (
	ErrBadSignature   = errors.New("webhook signature mismatch")
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
)

// Sign computes the hex HMAC-SHA256 of "timestamp.rawBody" under the shared
// secret. Exposed so tests and the sending side build identical headers.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the header value the verifier expects:
// "t=<unix>,v1=<hex>".
func SignatureHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign(secret, ts, body))
}

// VerifySignature authenticates a webhook delivery. It parses the
// "t=...,v1=..." header, bounds the timestamp skew, and compares the supplied
// signature against the expected one in constant time.
func VerifySignature(secret, header string, body []byte, now time.Time) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp %q", ErrBadSignature, v)
			}
			ts = parsed
		case "v1":
			if sig == "" {
				sig = v
			}
		}
	}
	if ts == 0 || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrBadSignature)
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > SignatureTolerance {
		return ErrStaleTimestamp
	}

	expected := Sign(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}
