// Package signature authenticates provider webhook requests.
//
// The provider signs "{ts}:{body}" with HMAC-SHA256 and sends the result in a
// header of the form "ts=<unix seconds>;h1=<hex digest>".
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/paysync/internal/billing/domain"
)

// DefaultTolerance is the maximum accepted distance between the signing time and now.
const DefaultTolerance = 300 * time.Second

// Verifier checks webhook signatures against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTolerance overrides DefaultTolerance.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// New creates a verifier. An empty secret is a configuration error.
func New(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not set", domain.ErrConfig)
	}
	v := &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify returns nil when header carries a fresh, matching signature for body.
func (v *Verifier) Verify(body []byte, header string) error {
	ts, digests, err := parseHeader(header)
	if err != nil {
		return err
	}

	// Freshness first: stale requests never reach the HMAC. Whole seconds
	// keep timestamps beyond the time.Duration range comparable.
	tol := int64(v.tolerance / time.Second)
	if skew := v.now().Unix() - ts; skew > tol || skew < -tol {
		return fmt.Errorf("%w: timestamp outside tolerance", domain.ErrAuth)
	}

	expected := v.mac(strconv.FormatInt(ts, 10), body)
	for _, d := range digests {
		got, err := hex.DecodeString(d)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", domain.ErrAuth)
}

// Valid reports whether Verify succeeds.
func (v *Verifier) Valid(body []byte, header string) bool {
	return v.Verify(body, header) == nil
}

// Sign produces a header for body signed at ts.
func (v *Verifier) Sign(body []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "ts=" + unix + ";h1=" + hex.EncodeToString(v.mac(unix, body))
}

func (v *Verifier) mac(ts string, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(ts))
	h.Write([]byte{':'})
	h.Write(body)
	return h.Sum(nil)
}

// parseHeader extracts ts and every h1 value. Rotated secrets produce more
// than one h1 entry.
func parseHeader(header string) (int64, []string, error) {
	var (
		ts      int64
		hasTS   bool
		digests []string
	)
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: malformed timestamp", domain.ErrAuth)
			}
			ts, hasTS = n, true
		case "h1":
			if value = strings.TrimSpace(value); value != "" {
				digests = append(digests, value)
			}
		}
	}
	if !hasTS {
		return 0, nil, fmt.Errorf("%w: missing ts", domain.ErrAuth)
	}
	if len(digests) == 0 {
		return 0, nil, fmt.Errorf("%w: missing h1", domain.ErrAuth)
	}
	return ts, digests, nil
}
