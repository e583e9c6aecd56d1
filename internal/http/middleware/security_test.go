package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/gifts", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/gifts/:id/claim", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/gifts", nil))

	want := map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Access-Control-Expose-Headers": "X-Request-ID",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Fatalf("%s unexpectedly set: %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_UnsafeMethodsNeverCached(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, httptest.NewRequest(http.MethodPost, "/gifts/g1/claim", nil))
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" {
		t.Fatalf("claim response must be no-store: %v", h)
	}

	h = serveSecurity(t, SecurityOptions{NoStore: true}, httptest.NewRequest(http.MethodGet, "/gifts", nil))
	if h.Get("Cache-Control") != "no-store" {
		t.Fatalf("NoStore ignored on GET")
	}
}

func TestSecurityHeaders_PolicyAndHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, EnablePolicy: true}

	plain := serveSecurity(t, opt, httptest.NewRequest(http.MethodGet, "/gifts", nil))
	if plain.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}
	if plain.Get("Permissions-Policy") == "" || plain.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %v", plain)
	}

	proxied := httptest.NewRequest(http.MethodGet, "/gifts", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	if got := serveSecurity(t, opt, proxied).Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/gifts", nil)
	direct.TLS = &tls.ConnectionState{}
	if got := serveSecurity(t, SecurityOptions{EnableHSTS: true}, direct).Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains" {
		t.Fatalf("default HSTS = %q", got)
	}
}

func TestExposeHeader_AppendsOnce(t *testing.T) {
	h := http.Header{}
	h.Set("Access-Control-Expose-Headers", "Content-Length")
	exposeHeader(h, "X-Request-ID")
	exposeHeader(h, "x-request-id")
	if got := h.Get("Access-Control-Expose-Headers"); got != "Content-Length, X-Request-ID" {
		t.Fatalf("expose = %q", got)
	}
}
