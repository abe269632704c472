package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("s3cret")(okHandler)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
		errMsg string
	}{
		{"missing", "", "", http.StatusUnauthorized, "missing authentication token"},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK, ""},
		{"bearer lowercase scheme", "Authorization", "bearer s3cret", http.StatusOK, ""},
		{"api key header", "X-API-Key", "s3cret", http.StatusOK, ""},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized, "invalid authentication token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/sign", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := serve(h, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.errMsg != "" {
				assert.JSONEq(t, `{"error":"`+tt.errMsg+`"}`, rec.Body.String())
			}
		})
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	rec := serve(Auth("")(okHandler), httptest.NewRequest(http.MethodPost, "/api/sign", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://minidict.app"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://minidict.app")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://minidict.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, HeaderRequestID, rec.Header().Get("Access-Control-Expose-Headers"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/order", nil)
	req.Header.Set("Origin", "https://minidict.app")
	rec = serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := serve(h, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 65))
	rec = serve(h, req)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestRecover_RepanicsAbortHandler(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/markets?limit=5", nil)
	req.Header.Set(HeaderRequestID, "rid-1")
	serve(h, req)

	line := buf.String()
	assert.Contains(t, line, `"level":"WARN"`)
	assert.Contains(t, line, `"status":502`)
	assert.Contains(t, line, `"query":"limit=5"`)
	assert.Contains(t, line, `"request_id":"rid-1"`)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects with retry-after", func(t *testing.T) {
		l := &fakeLimiter{allow: false}
		trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		h := RateLimit(l, 10, 30*time.Second, trusted, discardLogger())(okHandler)

		req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
		req.RemoteAddr = "10.0.0.2:443"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		rec := serve(h, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"ratelimit:api:203.0.113.9"}, l.keys)
	})

	t.Run("spoofed forwarding headers share the peer bucket", func(t *testing.T) {
		l := &fakeLimiter{allow: true}
		h := RateLimit(l, 10, time.Second, nil, discardLogger())(okHandler)

		for _, spoof := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
			req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
			req.RemoteAddr = "203.0.113.50:40000"
			req.Header.Set("X-Forwarded-For", spoof)
			req.Header.Set("X-Real-IP", spoof)
			serve(h, req)
		}

		assert.Equal(t, []string{
			"ratelimit:api:203.0.113.50",
			"ratelimit:api:203.0.113.50",
			"ratelimit:api:203.0.113.50",
		}, l.keys)
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		l := &fakeLimiter{err: errors.New("redis down")}
		rec := serve(RateLimit(l, 10, time.Second, nil, discardLogger())(okHandler), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled without limit", func(t *testing.T) {
		l := &fakeLimiter{}
		rec := serve(RateLimit(l, 0, time.Second, nil, discardLogger())(okHandler), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, l.keys)
	})
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted bool
		want    string
	}{
		{name: "bare peer", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "untrusted peer ignores xff", remote: "203.0.113.7:1", xff: "198.51.100.9", trusted: true, want: "203.0.113.7"},
		{name: "untrusted peer ignores real ip", remote: "203.0.113.7:1", realIP: "198.51.100.9", trusted: true, want: "203.0.113.7"},
		{name: "no trust list ignores headers", remote: "192.0.2.1:5555", xff: "198.51.100.9", want: "192.0.2.1"},
		{name: "trusted peer real ip", remote: "192.0.2.1:5555", realIP: "198.51.100.2", trusted: true, want: "198.51.100.2"},
		{name: "rightmost untrusted hop", remote: "10.1.2.3:80", xff: "1.1.1.1, 198.51.100.9, 10.0.0.7", trusted: true, want: "198.51.100.9"},
		{name: "all hops trusted", remote: "10.1.2.3:80", xff: "10.0.0.5, 10.0.0.6", trusted: true, want: "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			list := trusted
			if !tt.trusted {
				list = nil
			}
			assert.Equal(t, tt.want, clientIP(req, list))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.1/8 ", "", "::ffff:192.0.2.4"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "192.0.2.4/32", got[1].String())

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.ErrorContains(t, err, "proxy.internal")
}

func TestHTTPMetrics_LabelsByPattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("GET /api/items/{id}", okHandler)
	h := m.Middleware(mux)

	serve(h, httptest.NewRequest(http.MethodGet, "/api/items/1", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/api/items/2", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET /api/items/{id}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "GET", "404")))
	count, err := testutil.GatherAndCount(reg, "minidict_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
