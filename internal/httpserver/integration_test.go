package httpserver_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/chunkd/internal/catalog"
	"github.com/keithlinneman/chunkd/internal/httpserver"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/streamhttp"
)

// TestIntegration_FullStack runs real requests through NewHandler with a
// live Registry and Manager behind it: middleware, catalog lookup, and
// chunked delivery together.
func TestIntegration_FullStack(t *testing.T) {
	t.Parallel()

	mgr := catalog.NewManager()
	mgr.Set(catalog.Snapshot{
		Catalog: &catalog.Catalog{
			Version: "v1.0.0",
			Entries: []catalog.Entry{
				{Path: "/motd", Data: "Hello World\n", ContentType: "text/plain"},
				{Path: "/config/device.json", Data: `{"device":"demo","interval":30}`, ContentType: "application/json"},
			},
		},
		Meta: catalog.Meta{Version: "v1.0.0", SHA256: "abc123def456", Source: catalog.SourceSeed},
	})

	reg, err := streamhttp.New(streamhttp.Options{
		Logger:  log.Nop(),
		Catalog: mgr,
	})
	if err != nil {
		t.Fatalf("streamhttp.New: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	// A programmatic route next to the catalog entries, large enough to
	// cross several chunk boundaries.
	pattern := strings.Repeat("0123456789abcdef", 1024)
	if _, err := reg.HandleFunc("/generated/pattern", int64(len(pattern)), "text/plain",
		func(p []byte, off int64) (int, error) {
			return copy(p, pattern[off:]), nil
		}); err != nil {
		t.Fatalf("HandleFunc: %v", err)
	}

	handler := httpserver.NewHandler(httpserver.Options{
		Logger:       log.Nop(),
		CatalogInfo:  mgr,
		StreamRoutes: streamhttp.NewRoutes(reg).RegisterRoutes,
	})

	// Each subtest is one request shape through the assembled stack.

	t.Run("serves a catalog entry with security headers", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/motd", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "Hello World") {
			t.Fatalf("body = %q, want content containing 'Hello World'", body)
		}

		// the hardening headers ride every content response
		securityHeaders := []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"X-Frame-Options",
			"Referrer-Policy",
			"Cross-Origin-Embedder-Policy",
			"Cross-Origin-Opener-Policy",
			"Cross-Origin-Resource-Policy",
			"Permissions-Policy",
		}
		for _, hdr := range securityHeaders {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("missing security header: %s", hdr)
			}
		}

		// catalog identity, stamped by the middleware
		if got := rec.Header().Get("X-Catalog-Version"); got != "v1.0.0" {
			t.Errorf("X-Catalog-Version = %q, want %q", got, "v1.0.0")
		}
		if got := rec.Header().Get("X-Catalog-Hash"); got == "" {
			t.Error("X-Catalog-Hash not set")
		}

		// a request id was minted
		if got := rec.Header().Get("X-Request-Id"); got == "" {
			t.Error("X-Request-Id not set")
		}
	})

	t.Run("serves json with the declared content type", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/config/device.json", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("Content-Type = %q, want application/json", ct)
		}

		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), `"device":"demo"`) {
			t.Fatalf("body = %q, want the inline json", body)
		}
	})

	t.Run("streams a registered route across chunk boundaries", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/generated/pattern", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		body, _ := io.ReadAll(rec.Body)
		if len(body) != len(pattern) {
			t.Fatalf("body length = %d, want %d", len(body), len(pattern))
		}
		if string(body) != pattern {
			t.Fatal("streamed body does not match the generator output")
		}
	})

	t.Run("HEAD returns headers without a body", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodHead, "/motd", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Content-Length"); got != "12" {
			t.Fatalf("Content-Length = %q, want %q", got, "12")
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("HEAD body length = %d, want 0", rec.Body.Len())
		}
	})

	t.Run("returns 404 for a path not in the catalog", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/does-not-exist", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		// hardening headers do not depend on the status code
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on 404 response")
		}
	})

	t.Run("rejects POST with 405", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/motd", http.NoBody)
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != "GET, HEAD" {
			t.Fatalf("Allow = %q, want %q", got, "GET, HEAD")
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on 405 response")
		}
	})

	t.Run("returns 503 before the first snapshot", func(t *testing.T) {
		t.Parallel()

		empty := catalog.NewManager()
		reg2, err := streamhttp.New(streamhttp.Options{
			Logger:  log.Nop(),
			Catalog: empty,
		})
		if err != nil {
			t.Fatalf("streamhttp.New: %v", err)
		}
		t.Cleanup(func() { reg2.Close() })

		h2 := httpserver.NewHandler(httpserver.Options{
			Logger:       log.Nop(),
			CatalogInfo:  empty,
			StreamRoutes: streamhttp.NewRoutes(reg2).RegisterRoutes,
		})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/motd", http.NoBody)
		h2.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "60" {
			t.Fatalf("Retry-After = %q, want %q", got, "60")
		}
	})
}
