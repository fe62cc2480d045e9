package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// tagMW appends name to trail on the way in and name+"'" on the way
// out, so the composed order is visible in a single string.
func tagMW(trail *[]string, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trail = append(*trail, name)
			next.ServeHTTP(w, r)
			*trail = append(*trail, name+"'")
		})
	}
}

func TestChainOrder(t *testing.T) {
	var trail []string

	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trail = append(trail, "core")
		}),
		tagMW(&trail, "outer"),
		tagMW(&trail, "inner"),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	got := strings.Join(trail, " ")
	want := "outer inner core inner' outer'"
	if got != want {
		t.Fatalf("trail = %q, want %q", got, want)
	}
}

func TestChainEmptyReturnsHandler(t *testing.T) {
	ran := false
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	if !ran {
		t.Fatal("handler did not run")
	}
}

func TestChainSkipsNilEntries(t *testing.T) {
	var trail []string

	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trail = append(trail, "core")
		}),
		nil,
		tagMW(&trail, "only"),
		nil,
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	got := strings.Join(trail, " ")
	if got != "only core only'" {
		t.Fatalf("trail = %q, want %q", got, "only core only'")
	}
}

func TestChainMiddlewareSeesResponse(t *testing.T) {
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Wrapped", "1")
			next.ServeHTTP(w, r)
		})
	}

	rec := httptest.NewRecorder()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), mw)
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Header().Get("X-Wrapped") != "1" {
		t.Fatal("middleware header missing from response")
	}
}
