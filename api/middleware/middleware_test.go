package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(keys []string) *gin.Engine {
	r := gin.New()
	r.Use(Auth(keys))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestAuth_ValidKeyHeaderStyles(t *testing.T) {
	r := authRouter([]string{"secret-key"})

	for _, set := range []func(*http.Request){
		func(req *http.Request) { req.Header.Set("X-API-Key", "secret-key") },
		func(req *http.Request) { req.Header.Set("Authorization", "Bearer secret-key") },
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		set(req)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	}
}

func TestAuth_RejectsMissingAndInvalidKeys(t *testing.T) {
	r := authRouter([]string{"secret-key"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("invalid key: status = %d, want 401", w.Code)
	}
}

func TestAuth_MultipleKeysAllAccepted(t *testing.T) {
	r := authRouter([]string{"key-one", "key-two"})

	for _, key := range []string{"key-one", "key-two"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-API-Key", key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("key %q: status = %d, want 200", key, w.Code)
		}
	}
}

func TestAuth_EmptyConfiguredKeyIsNotAWildcard(t *testing.T) {
	// A stray empty string in the key list must not open the API.
	r := authRouter([]string{"", "secret-key"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", w.Code)
	}
}

func TestAuth_NoKeysMeansOpenAccess(t *testing.T) {
	r := authRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests = %v, first two should pass", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", codes[2])
	}
}

func TestLimiterPool_SweepsIdleEntries(t *testing.T) {
	pool := newLimiterPool(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	pool.get("stale")
	pool.entries["stale"].lastSeen = time.Now().Add(-2 * limiterIdleTTL)
	pool.nextSweep = time.Now().Add(-time.Second)

	pool.get("fresh")
	if _, ok := pool.entries["stale"]; ok {
		t.Error("idle entry survived sweep")
	}
	if _, ok := pool.entries["fresh"]; !ok {
		t.Error("fresh entry missing after sweep")
	}
}

func TestRateLimit_IdentitiesIsolated(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = addr
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("first request from %s = %d, want 200", addr, w.Code)
		}
	}
}
