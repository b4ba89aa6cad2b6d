package ratelimit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_ExhaustsBucketThenBlocks(t *testing.T) {
	l := New("", false)
	ip := "203.0.113.1"

	for i := 0; i < bucketSize; i++ {
		require.True(t, l.Allow(ip, 1), "token %d should still be available", i)
	}
	assert.False(t, l.Allow(ip, 1), "bucket should be exhausted")
}

func TestAllow_SeparateBucketsPerIP(t *testing.T) {
	l := New("", false)
	assert.True(t, l.Allow("10.0.0.1", bucketSize))
	assert.True(t, l.Allow("10.0.0.2", bucketSize), "a different IP must not share the first one's bucket")
}

func TestClientIP_FallsBackToRemoteAddrWithoutSSRCheck(t *testing.T) {
	l := New("shared-secret", false)
	r := httptest.NewRequest(http.MethodPost, "/auth/password-based/login", nil)
	r.RemoteAddr = "198.51.100.7:54321"
	r.Header.Set("X-SSR-Ip", "1.2.3.4")
	r.Header.Set("X-SSR-Ip-Verification", "bogus")

	assert.Equal(t, "198.51.100.7", l.ClientIP(r))
}

func TestClientIP_AcceptsValidSSRSignature(t *testing.T) {
	l := New("shared-secret", true)
	r := httptest.NewRequest(http.MethodPost, "/auth/password-based/login", nil)
	r.RemoteAddr = "198.51.100.7:54321"
	r.Header.Set("X-SSR-Ip", "1.2.3.4")
	r.Header.Set("X-SSR-Ip-Verification", l.signSSR("1.2.3.4"))

	assert.Equal(t, "1.2.3.4", l.ClientIP(r))
}

// signSSR mirrors verifySSR's MAC computation so the test can produce a
// signature without reaching into the package's crypto internals twice.
func (l *Limiter) signSSR(ip string) string {
	mac := hmac.New(sha256.New, []byte(l.ssrKey))
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCostForPasswordRoutes(t *testing.T) {
	cases := []struct {
		method   string
		path     string
		wantApply bool
		wantCost float64
	}{
		{http.MethodPost, "/auth/password-based/login", true, LoginCost},
		{http.MethodPost, "/auth/password-based/forgot-password", true, DefaultCost},
		{http.MethodGet, "/auth/password-based/login", false, 0},
		{http.MethodPost, "/auth/anonymous-based/login", false, 0},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, tc.path, nil)
		apply, cost := CostForPasswordRoutes(r)
		assert.Equal(t, tc.wantApply, apply, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.wantCost, cost, "%s %s", tc.method, tc.path)
	}
}

func TestMiddleware_RejectsWithTooManyRequests(t *testing.T) {
	l := New("", false)
	ip := "203.0.113.9"
	for i := 0; i < bucketSize; i++ {
		require.True(t, l.Allow(ip, 1))
	}

	mw := l.Middleware(func(r *http.Request) (bool, float64) { return true, 1 })
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	r := httptest.NewRequest(http.MethodPost, "/auth/password-based/login", nil)
	r.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
