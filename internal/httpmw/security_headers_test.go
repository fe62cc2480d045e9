package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// hardenedResponse runs one request through SecurityHeaders around h
// and returns the recorder.
func hardenedResponse(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	SecurityHeaders(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chunk/0", http.NoBody))
	return rec
}

func TestSecurityHeadersFixedValues(t *testing.T) {
	rec := hardenedResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	want := map[string]string{
		"Strict-Transport-Security":         "max-age=31536000; includeSubDomains; preload",
		"X-Content-Type-Options":            "nosniff",
		"X-Frame-Options":                   "DENY",
		"Referrer-Policy":                   "strict-origin-when-cross-origin",
		"X-Permitted-Cross-Domain-Policies": "none",
		"Cross-Origin-Embedder-Policy":      "require-corp",
		"Cross-Origin-Opener-Policy":        "same-origin",
		"Cross-Origin-Resource-Policy":      "same-origin",
	}
	for name, value := range want {
		if got := rec.Header().Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
}

func TestSecurityHeadersCSPDirectives(t *testing.T) {
	rec := hardenedResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	csp := rec.Header().Get("Content-Security-Policy")
	if csp == "" {
		t.Fatal("no Content-Security-Policy on response")
	}
	for _, directive := range []string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"object-src 'none'",
		"upgrade-insecure-requests",
	} {
		if !strings.Contains(csp, directive) {
			t.Errorf("CSP lacks %q: %s", directive, csp)
		}
	}
}

func TestSecurityHeadersPermissionsPolicy(t *testing.T) {
	rec := hardenedResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	pp := rec.Header().Get("Permissions-Policy")
	if pp == "" {
		t.Fatal("no Permissions-Policy on response")
	}
	for _, feature := range []string{"camera=()", "microphone=()", "geolocation=()", "payment=()", "usb=()"} {
		if !strings.Contains(pp, feature) {
			t.Errorf("Permissions-Policy does not disable %q", feature)
		}
	}
}

func TestSecurityHeadersPreserveHandlerStatus(t *testing.T) {
	rec := hardenedResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 from the inner handler", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("hardening headers missing on an error response")
	}
}

func TestSecurityHeadersVisibleDownstream(t *testing.T) {
	// The headers go on before next runs, so a handler can rely on
	// them being present when it writes.
	var hsts string
	hardenedResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hsts = w.Header().Get("Strict-Transport-Security")
	}))

	if hsts == "" {
		t.Fatal("inner handler did not see the HSTS header")
	}
}
