package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/joeychilson/cacheurl/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
})

func TestAuth_NoAPIKey(t *testing.T) {
	handler := Auth("")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestAuth_ValidKey(t *testing.T) {
	testKey := "test-secret-key-12345"
	handler := Auth(testKey)(okHandler)

	tests := []struct {
		name       string
		headerName string
		headerVal  string
	}{
		{"X-API-Key header", "X-API-Key", testKey},
		{"Authorization Bearer", "Authorization", "Bearer " + testKey},
		{"lowercase scheme", "Authorization", "bearer " + testKey},
		{"uppercase scheme", "Authorization", "BEARER " + testKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(tt.headerName, tt.headerVal)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
		})
	}
}

func TestAuth_InvalidKey(t *testing.T) {
	testKey := "test-secret-key-12345"
	handler := Auth(testKey)(okHandler)

	tests := []struct {
		name       string
		headerName string
		headerVal  string
	}{
		{"wrong key", "X-API-Key", "wrong-key"},
		{"similar key", "X-API-Key", "test-secret-key-12344"},
		{"prefix match", "X-API-Key", "test-secret-key"},
		{"longer key", "X-API-Key", testKey + "6"},
		{"bearer without token", "Authorization", "Bearer "},
		{"basic scheme", "Authorization", "Basic " + testKey},
		{"bare token", "Authorization", testKey},
		{"scheme prefix of another word", "Authorization", "Bearerx " + testKey},
		{"no key header", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.headerName != "" {
				req.Header.Set(tt.headerName, tt.headerVal)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), "unauthorized") {
				t.Errorf("unexpected body %q", w.Body.String())
			}
		})
	}
}

func doRequests(t *testing.T, handler http.Handler, n int) []int {
	t.Helper()
	codes := make([]int, 0, n)
	for range n {
		req := httptest.NewRequest(http.MethodGet, "/v1/cache-url", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	return codes
}

func TestRateLimit_InMemory(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RequestLimit: 2, WindowDuration: time.Minute})(okHandler)

	codes := doRequests(t, handler, 3)
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", codes[2])
	}
}

func TestRateLimit_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := RateLimitConfig{
		RequestLimit:   2,
		WindowDuration: time.Minute,
		RedisClient:    client,
		PrefixKey:      "test:ratelimit",
	}

	// Two limiters sharing one store behave like two server instances.
	first := RateLimit(cfg)(okHandler)
	second := RateLimit(cfg)(okHandler)

	codes := append(doRequests(t, first, 2), doRequests(t, second, 1)...)
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("first two requests should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("request through second limiter status = %d, want 429", codes[2])
	}

	keys := mr.Keys()
	if len(keys) == 0 || !strings.HasPrefix(keys[0], "test:ratelimit") {
		t.Errorf("expected counters under prefix, got %v", keys)
	}
}

func TestRateLimit_Defaults(t *testing.T) {
	handler := RateLimit(RateLimitConfig{})(okHandler)

	codes := doRequests(t, handler, 5)
	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d status = %d, want 200", i, code)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewJSON(&buf, logger.LevelInfo)

	handler := chimiddleware.RequestID(Logger(log)(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/v1/caches", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	output := buf.String()
	if !strings.Contains(output, "/v1/caches") {
		t.Errorf("request log should contain the path, got %q", output)
	}
	if !strings.Contains(output, "request_id") {
		t.Errorf("request log should contain the request id, got %q", output)
	}
}

func TestLogger_SkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	handler := Logger(logger.NewJSON(&buf, logger.LevelInfo))(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if buf.Len() != 0 {
		t.Errorf("health checks should not be logged, got %q", buf.String())
	}
}

func TestLogger_NilLogger(t *testing.T) {
	handler := Logger(nil)(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
