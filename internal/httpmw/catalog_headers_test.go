package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubCatalogInfo struct {
	version string
	hash    string
}

func (s *stubCatalogInfo) CatalogVersion() string { return s.version }
func (s *stubCatalogInfo) CatalogHash() string    { return s.hash }

func TestCatalogHeaders_BothSet(t *testing.T) {
	info := &stubCatalogInfo{
		version: "v1.2.3",
		hash:    "abcdef1234567890abcdef",
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := CatalogHeaders(info)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Catalog-Version"); got != "v1.2.3" {
		t.Fatalf("X-Catalog-Version = %q, want %q", got, "v1.2.3")
	}
	// only the first 12 chars of the hash go on the wire
	if got := rec.Header().Get("X-Catalog-Hash"); got != "abcdef123456" {
		t.Fatalf("X-Catalog-Hash = %q, want %q", got, "abcdef123456")
	}
}

func TestCatalogHeaders_ShortHash(t *testing.T) {
	info := &stubCatalogInfo{
		version: "v1.0.0",
		hash:    "abc123",
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := CatalogHeaders(info)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	// nothing to truncate below 12 chars
	if got := rec.Header().Get("X-Catalog-Hash"); got != "abc123" {
		t.Fatalf("X-Catalog-Hash = %q, want %q", got, "abc123")
	}
}

func TestCatalogHeaders_ExactlyTwelveCharHash(t *testing.T) {
	info := &stubCatalogInfo{
		version: "v1.0.0",
		hash:    "abcdef123456",
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := CatalogHeaders(info)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Catalog-Hash"); got != "abcdef123456" {
		t.Fatalf("X-Catalog-Hash = %q, want %q", got, "abcdef123456")
	}
}

func TestCatalogHeaders_EmptyVersion(t *testing.T) {
	info := &stubCatalogInfo{
		version: "",
		hash:    "abcdef1234567890",
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := CatalogHeaders(info)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Catalog-Version"); got != "" {
		t.Fatalf("expected no version header, got %q", got)
	}
	if got := rec.Header().Get("X-Catalog-Hash"); got == "" {
		t.Fatal("expected hash header to be set")
	}
}

func TestCatalogHeaders_EmptyHash(t *testing.T) {
	info := &stubCatalogInfo{
		version: "v2.0.0",
		hash:    "",
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := CatalogHeaders(info)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Catalog-Version"); got != "v2.0.0" {
		t.Fatalf("version = %q, want %q", got, "v2.0.0")
	}
	if got := rec.Header().Get("X-Catalog-Hash"); got != "" {
		t.Fatalf("expected no hash header, got %q", got)
	}
}

func TestCatalogHeaders_NilInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := CatalogHeaders(nil)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Catalog-Version"); got != "" {
		t.Fatalf("expected no version header with nil info, got %q", got)
	}
	if got := rec.Header().Get("X-Catalog-Hash"); got != "" {
		t.Fatalf("expected no hash header with nil info, got %q", got)
	}
}

func TestCatalogHeaders_HandlerCalled(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	mw := CatalogHeaders(&stubCatalogInfo{version: "v1", hash: "abc"})
	mw(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !called {
		t.Fatal("next handler not called")
	}
}
