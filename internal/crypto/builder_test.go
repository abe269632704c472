package crypto

import (
	"strconv"
	"testing"
	"time"

	"github.com/minidict/minidict/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "c2VjcmV0LWtleS1mb3ItdGVzdHM=" // "secret-key-for-tests"

func TestHeadersAt_KnownVectors(t *testing.T) {
	s := NewBuilderSigner("key-1", testSecret, "pass-1")

	testCases := []struct {
		name   string
		method string
		path   string
		body   string
		want   string
	}{
		{"post with body", "POST", "/order", `{"a":1}`, "r5DxgKCEdq9Q+UrqvB1gWlcBKuf3smY/TNyOFsg6BxY="},
		{"get without body", "GET", "/orders", "", "7ZTWcdZmftMBq1eCnqCSZ+a2reEqvo+c/9tFSehVj8c="},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := s.HeadersAt(tc.method, tc.path, tc.body, 1700000000000)
			require.NoError(t, err)
			assert.Equal(t, "key-1", h[HeaderBuilderAPIKey])
			assert.Equal(t, "pass-1", h[HeaderBuilderPassphrase])
			assert.Equal(t, "1700000000000", h[HeaderBuilderTimestamp])
			assert.Equal(t, tc.want, h[HeaderBuilderSignature])
		})
	}
}

func TestHeadersAt_Deterministic(t *testing.T) {
	s := NewBuilderSigner("k", testSecret, "p")
	a, err := s.HeadersAt("POST", "/order", "x", 42)
	require.NoError(t, err)
	b, err := s.HeadersAt("POST", "/order", "x", 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := s.HeadersAt("POST", "/order", "y", 42)
	require.NoError(t, err)
	assert.NotEqual(t, a[HeaderBuilderSignature], c[HeaderBuilderSignature])
}

func TestHeadersAt_URLSafeSecret(t *testing.T) {
	std := NewBuilderSigner("k", "+/+/", "p")
	url := NewBuilderSigner("k", "-_-_", "p")

	a, err := std.HeadersAt("GET", "/", "", 1)
	require.NoError(t, err)
	b, err := url.HeadersAt("GET", "/", "", 1)
	require.NoError(t, err)
	assert.Equal(t, a[HeaderBuilderSignature], b[HeaderBuilderSignature])
}

func TestHeaders_MissingCredentials(t *testing.T) {
	testCases := []struct {
		name string
		s    *BuilderSigner
	}{
		{"missing key", NewBuilderSigner("", testSecret, "p")},
		{"missing secret", NewBuilderSigner("k", "", "p")},
		{"missing passphrase", NewBuilderSigner("k", testSecret, "")},
		{"nil signer", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.s.Headers("POST", "/order", "")
			assert.ErrorIs(t, err, domain.ErrMissingCredentials)
		})
	}
}

func TestHeaders_TimestampIsMillis(t *testing.T) {
	s := NewBuilderSigner("k", testSecret, "p")
	before := time.Now().UnixMilli()
	h, err := s.Headers("GET", "/", "")
	require.NoError(t, err)
	after := time.Now().UnixMilli()

	ts, err := strconv.ParseInt(h[HeaderBuilderTimestamp], 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)
}

func TestString_Redacts(t *testing.T) {
	s := NewBuilderSigner("abcdefgh", testSecret, "p")
	out := s.String()
	assert.NotContains(t, out, testSecret)
	assert.Contains(t, out, "abcd****")
}
