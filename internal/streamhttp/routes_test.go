package streamhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// stubHandler remembers the request that reached it.
type stubHandler struct {
	called bool
	method string
	path   string
	route  string
}

func (h *stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.method = r.Method
	h.path = r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		h.route = rctx.RoutePattern()
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("stub"))
}

func TestNewRoutes_ReturnsRoutes(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rt := NewRoutes(h)

	if rt == nil {
		t.Fatal("NewRoutes returned nil")
	}
	if rt.Stream == nil {
		t.Fatal("Stream handler not set")
	}
}

func TestRegisterRoutes_NotFound_DelegatesToStream(t *testing.T) {
	stub := &stubHandler{}
	rt := NewRoutes(stub)

	r := chi.NewRouter()
	rt.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/content/firmware.bin", nil)
	r.ServeHTTP(rec, req)

	if !stub.called {
		t.Fatal("stream handler should be called for unmatched routes")
	}
	if stub.path != "/content/firmware.bin" {
		t.Fatalf("path = %q, want /content/firmware.bin", stub.path)
	}
}

func TestRegisterRoutes_NotFound_PreservesMethod(t *testing.T) {
	stub := &stubHandler{}
	rt := NewRoutes(stub)

	r := chi.NewRouter()
	rt.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/does-not-exist", nil)
	r.ServeHTTP(rec, req)

	if !stub.called {
		t.Fatal("stream handler should be called")
	}
	if stub.method != "POST" {
		t.Fatalf("method = %q, want POST", stub.method)
	}
}

func TestRegisterRoutes_ExplicitRouteTakesPrecedence(t *testing.T) {
	stub := &stubHandler{}
	rt := NewRoutes(stub)

	r := chi.NewRouter()

	explicitCalled := false
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		explicitCalled = true
		w.WriteHeader(http.StatusOK)
	})

	rt.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	r.ServeHTTP(rec, req)

	if !explicitCalled {
		t.Fatal("explicit route should take precedence")
	}
	if stub.called {
		t.Fatal("stream handler should NOT be called for explicit routes")
	}
}

func TestRegisterRoutes_StampsDeliveryRoutePattern(t *testing.T) {
	stub := &stubHandler{}
	rt := NewRoutes(stub)

	r := chi.NewRouter()
	rt.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/any/device/chosen/path.bin", nil)
	r.ServeHTTP(rec, req)

	if !stub.called {
		t.Fatal("stream handler should be called")
	}
	if stub.route != "/{delivery_path}" {
		t.Fatalf("route pattern = %q, want /{delivery_path}", stub.route)
	}
	// The raw path still reaches the handler untouched.
	if stub.path != "/any/device/chosen/path.bin" {
		t.Fatalf("path = %q, want the original request path", stub.path)
	}
}

func TestRegisterRoutes_MethodNotAllowed_DelegatesToStream(t *testing.T) {
	stub := &stubHandler{}
	rt := NewRoutes(stub)

	r := chi.NewRouter()
	r.Get("/resource", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rt.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/resource", nil)
	r.ServeHTTP(rec, req)

	if !stub.called {
		t.Fatal("stream handler should handle method-not-allowed via MethodNotAllowed override")
	}
}

func TestRegisterRoutes_EndToEnd_ServesRegistry(t *testing.T) {
	reg := newTestRegistry(t, Options{})
	if _, err := reg.HandleProvider("/motd", memProvider(t, "routed")); err != nil {
		t.Fatalf("HandleProvider: %v", err)
	}

	r := chi.NewRouter()
	NewRoutes(reg).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/motd", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "routed" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "routed")
	}
}
