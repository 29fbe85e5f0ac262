// Package auth implements the stateless signed-request protocol.
//
// Every balance- or state-mutating call carries four headers:
//
//	X-User-Hash  — claimed wallet fingerprint
//	X-Signature  — hex HMAC-SHA256 over the canonical payload
//	X-Timestamp  — epoch milliseconds at signing time
//	X-Nonce      — client-generated, unique per request
//
// The canonical payload is the JSON of {...businessPayload, timestamp, nonce}
// with keys sorted ascending and no whitespace. Verification is pure: it
// reads the wallet secret, recomputes the digest and compares in constant
// time. Replay protection is layered on top via a ReplayGuard keyed by
// userHash:nonce with a TTL equal to the validity window.
package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/yourtongji/creditd/internal/domain"
)

// DefaultWindow bounds |now - timestamp| for accepted signatures.
const DefaultWindow = 5 * time.Minute

// Header carries the signing headers of one request.
type Header struct {
	UserHash  string
	Signature string
	Timestamp int64 // epoch milliseconds
	Nonce     string
}

// SecretSource resolves a wallet's signing secret.
// Returns domain.ErrNotFound when the wallet does not exist.
type SecretSource interface {
	UserSecret(ctx context.Context, userHash string) (string, error)
}

// ─── Canonicalization ───────────────────────────────────────────────────────

// CanonicalPayload merges the business payload with timestamp and nonce and
// serializes it deterministically. An empty body is treated as an empty
// object, so unsigned-body GETs still bind timestamp and nonce.
//
// encoding/json marshals map keys in sorted order with no whitespace, which
// is exactly the canonical form; json.Number preserves the client's number
// literals across the decode/encode round trip.
func CanonicalPayload(body []byte, timestampMillis int64, nonce string) ([]byte, error) {
	payload := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("payload is not a JSON object: %w", err)
		}
	}
	payload["timestamp"] = json.Number(strconv.FormatInt(timestampMillis, 10))
	payload["nonce"] = nonce

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign computes the hex HMAC-SHA256 signature a client would send.
func Sign(secret string, body []byte, timestampMillis int64, nonce string) (string, error) {
	canonical, err := CanonicalPayload(body, timestampMillis, nonce)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ─── Verifier ───────────────────────────────────────────────────────────────

// Verifier checks signed requests. It is the trust root for every mutating
// operation; it performs no side effects beyond the replay guard write.
type Verifier struct {
	secrets SecretSource
	guard   domain.ReplayGuard
	window  time.Duration
	now     func() time.Time
}

// NewVerifier creates a request verifier. guard may be nil, in which case
// replay protection degrades to the timestamp window alone.
func NewVerifier(secrets SecretSource, guard domain.ReplayGuard, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Verifier{secrets: secrets, guard: guard, window: window, now: time.Now}
}

// Verify validates the signature for the given body and headers.
// Error taxonomy: domain.ErrNotFound (unknown wallet), domain.ErrUnverifiable
// (wallet registered without a secret), domain.ErrUnauthorized (anything a
// caller without the secret could have caused).
func (v *Verifier) Verify(ctx context.Context, h Header, body []byte) error {
	if h.UserHash == "" || h.Signature == "" || h.Nonce == "" || h.Timestamp <= 0 {
		return fmt.Errorf("%w: incomplete signing headers", domain.ErrUnauthorized)
	}

	// Timestamp window check first: it is free and bounds replay exposure.
	sent := time.UnixMilli(h.Timestamp)
	if d := v.now().Sub(sent); d > v.window || d < -v.window {
		return fmt.Errorf("%w: timestamp outside validity window", domain.ErrUnauthorized)
	}

	secret, err := v.secrets.UserSecret(ctx, h.UserHash)
	if err != nil {
		return err
	}
	if secret == "" {
		return domain.ErrUnverifiable
	}

	want, err := Sign(secret, body, h.Timestamp, h.Nonce)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !hmac.Equal([]byte(want), []byte(h.Signature)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	}

	if v.guard != nil {
		fresh, err := v.guard.Remember(ctx, h.UserHash+":"+h.Nonce, v.window)
		if err != nil {
			return fmt.Errorf("replay guard: %w", err)
		}
		if !fresh {
			return fmt.Errorf("%w: nonce already consumed", domain.ErrUnauthorized)
		}
	}
	return nil
}

// ─── Admin Token ────────────────────────────────────────────────────────────

// CheckAdminToken compares a presented admin token against the server-side
// secret in constant time. This is a separate, coarser trust boundary from
// per-user signing.
func CheckAdminToken(presented, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: admin access disabled", domain.ErrUnauthorized)
	}
	if !hmac.Equal([]byte(presented), []byte(secret)) {
		return fmt.Errorf("%w: invalid admin token", domain.ErrUnauthorized)
	}
	return nil
}
