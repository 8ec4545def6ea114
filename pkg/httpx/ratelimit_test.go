package httpx_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/truecredit/authserver/pkg/httpx"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fromIP(target, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetRemoteIP(t *testing.T) {
	t.Run("connection address", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.GetRemoteIP(fromIP("/", "192.168.1.1")))
	})

	t.Run("first forwarded hop", func(t *testing.T) {
		req := fromIP("/", "192.168.1.1")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.GetRemoteIP(req))
	})

	t.Run("real ip header", func(t *testing.T) {
		req := fromIP("/", "192.168.1.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.GetRemoteIP(req))
	})
}

func TestClientKeyExtractor(t *testing.T) {
	basic := httptest.NewRequest(http.MethodPost, "/connect/token", nil)
	basic.SetBasicAuth("resource_server_1", "secret")
	require.Equal(t, "resource_server_1", httpx.ClientKeyExtractor(basic))

	form := url.Values{"client_id": {"aurelia"}}
	posted := httptest.NewRequest(http.MethodPost, "/connect/token", strings.NewReader(form.Encode()))
	posted.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, "aurelia", httpx.ClientKeyExtractor(posted))
	require.Equal(t, "aurelia", posted.PostFormValue("client_id"))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks once the burst is spent", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3})(okHandler())

		for i := range 3 {
			require.Equal(t, http.StatusOK, serve(h, fromIP("/", "192.168.1.1")).Code, "request %d", i+1)
		}

		rec := serve(h, fromIP("/", "192.168.1.1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "temporarily_unavailable")
	})

	t.Run("keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler())

		require.Equal(t, http.StatusOK, serve(h, fromIP("/", "10.0.0.1")).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromIP("/", "10.0.0.1")).Code)
		require.Equal(t, http.StatusOK, serve(h, fromIP("/", "10.0.0.2")).Code)
	})

	t.Run("empty key is not limited", func(t *testing.T) {
		empty := func(*http.Request) string { return "" }
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}, empty)(okHandler())

		for range 3 {
			require.Equal(t, http.StatusOK, serve(h, fromIP("/", "10.0.0.1")).Code)
		}
	})

	t.Run("ip and form field", func(t *testing.T) {
		h := httpx.RateLimitByIPAndFormField(httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}, "username")(okHandler())

		for range 2 {
			require.Equal(t, http.StatusOK, serve(h, fromIP("/?username=alice", "10.0.0.1")).Code)
		}
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromIP("/?username=alice", "10.0.0.1")).Code)
		require.Equal(t, http.StatusOK, serve(h, fromIP("/?username=bob", "10.0.0.1")).Code)
	})
}

func TestRateLimitProfilesFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "50")
	t.Setenv("RATELIMIT_STRICT_WINDOW_SEC", "10")
	t.Setenv("RATELIMIT_STRICT_BURST", "not-a-number")
	t.Setenv("RATELIMIT_PUBLIC_BURST", "-4")

	def := httpx.DefaultRateLimitProfiles()
	got := httpx.RateLimitProfilesFromEnv()

	require.Equal(t, 50, got.Strict.RequestsPerWindow)
	require.Equal(t, 10*time.Second, got.Strict.Window)
	require.Equal(t, def.Strict.Burst, got.Strict.Burst)
	require.Equal(t, def.Public, got.Public)
	require.Equal(t, def.Moderate, got.Moderate)
}

func BenchmarkRateLimitManyIPs(b *testing.B) {
	h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1000000, Window: time.Minute, Burst: 1000})(okHandler())

	for i := 0; b.Loop(); i++ {
		serve(h, fromIP("/", fmt.Sprintf("192.168.%d.%d", i%255, (i/255)%255)))
	}
}
