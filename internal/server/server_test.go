package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"plantkeeper/internal/api"
)

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:3000")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:3000" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		if _, err := ListenAddr("http://0.0.0.0:3000"); err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:3000")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:3000" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestPingAndHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/ping", nil)
	expectStatus(t, w, http.StatusOK)
	if resp := decodeBody[api.PingResponse](t, w); resp.UUID != DefaultDiscoveryID {
		t.Fatalf("unexpected discovery id %q", resp.UUID)
	}

	env.srv.Configure(Options{DiscoveryID: "11111111-2222-3333-4444-555555555555"})
	w = env.do(t, http.MethodGet, "/ping", nil)
	if resp := decodeBody[api.PingResponse](t, w); resp.UUID != "11111111-2222-3333-4444-555555555555" {
		t.Fatalf("expected configured discovery id, got %q", resp.UUID)
	}

	w = env.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
	if resp := decodeBody[api.HealthResponse](t, w); resp.Status != "ok" {
		t.Fatalf("unexpected health %#v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.do(t, http.MethodGet, "/metrics", nil), http.StatusNotFound)

	env.srv.Configure(Options{MetricsEnabled: true})
	req := httptest.NewRequest(http.MethodGet, "/plants", nil)
	env.srv.handler().ServeHTTP(httptest.NewRecorder(), req)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "plantkeeper_http_requests_total") {
		t.Fatal("expected request counter in metrics output")
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.handler()

	req := httptest.NewRequest(http.MethodGet, "/plants", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}

	env.srv.Configure(Options{CORSAllowedOrigins: []string{"http://allowed.test"}})
	h = env.srv.handler()
	req = httptest.NewRequest(http.MethodOptions, "/plants/1", nil)
	req.Header.Set("Origin", "http://allowed.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://allowed.test" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/plants", nil)
	req.Header.Set("Origin", "http://other.test")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS header for other origin, got %q", got)
	}
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.withRequestLogging(env.srv.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plants", nil))
	expectErrorCode(t, w, http.StatusInternalServerError, ErrCodeInternal)
	if resp := decodeBody[api.ErrorResponse](t, w); resp.Error != "internal error" {
		t.Fatalf("panic details must not leak, got %q", resp.Error)
	}
}
