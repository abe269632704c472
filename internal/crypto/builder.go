// Package crypto produces the builder-attribution headers that tag orders
// forwarded to the Polymarket CLOB.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/minidict/minidict/internal/domain"
)

// Builder header names.
const (
	HeaderBuilderAPIKey     = "POLY_BUILDER_API_KEY"
	HeaderBuilderTimestamp  = "POLY_BUILDER_TIMESTAMP"
	HeaderBuilderPassphrase = "POLY_BUILDER_PASSPHRASE"
	HeaderBuilderSignature  = "POLY_BUILDER_SIGNATURE"
)

// BuilderSigner holds the builder-program credentials. Secret is the
// base64-encoded shared secret issued by Polymarket.
type BuilderSigner struct {
	Key        string
	Secret     string
	Passphrase string
}

// NewBuilderSigner creates a signer. Missing credentials are reported when
// headers are requested, not here, so the server can start without them.
func NewBuilderSigner(key, secret, passphrase string) *BuilderSigner {
	return &BuilderSigner{Key: key, Secret: secret, Passphrase: passphrase}
}

// Configured reports whether all three credentials are present.
func (s *BuilderSigner) Configured() bool {
	return s != nil && s.Key != "" && s.Secret != "" && s.Passphrase != ""
}

// Headers returns the builder headers for a request, timestamped with the
// current time in milliseconds.
func (s *BuilderSigner) Headers(method, path, body string) (map[string]string, error) {
	return s.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is like Headers with a caller-supplied millisecond timestamp.
//
// The signature is base64(HMAC-SHA256(base64decode(secret),
// timestamp+method+path+body)).
func (s *BuilderSigner) HeadersAt(method, path, body string, tsMillis int64) (map[string]string, error) {
	if !s.Configured() {
		return nil, domain.ErrMissingCredentials
	}

	key, err := decodeSecret(s.Secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode builder secret: %w", err)
	}

	ts := strconv.FormatInt(tsMillis, 10)
	sig := hmacSHA256Base64(key, ts+method+path+body)

	return map[string]string{
		HeaderBuilderAPIKey:     s.Key,
		HeaderBuilderTimestamp:  ts,
		HeaderBuilderPassphrase: s.Passphrase,
		HeaderBuilderSignature:  sig,
	}, nil
}

// String returns a redacted representation suitable for logging.
func (s *BuilderSigner) String() string {
	redact := func(v string) string {
		if len(v) <= 4 {
			return "****"
		}
		return v[:4] + "****"
	}
	return fmt.Sprintf("BuilderSigner{key=%s, secret=%s}", redact(s.Key), redact(s.Secret))
}

// decodeSecret accepts both the standard and URL-safe base64 alphabets, with
// or without padding.
func decodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	normalised := strings.NewReplacer("-", "+", "_", "/").Replace(secret)
	normalised = strings.TrimRight(normalised, "=")
	return base64.RawStdEncoding.DecodeString(normalised)
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
