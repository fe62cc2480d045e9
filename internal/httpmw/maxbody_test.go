package httpmw

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoBody reads the whole body and writes it back, surfacing a 413
// when the cap cuts the read short. Shared by the MaxBody tests.
func echoBody() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

func TestMaxBodySizes(t *testing.T) {
	tests := []struct {
		name       string
		cap        int64
		bodyBytes  int
		wantStatus int
	}{
		{"well under cap", 1024, 11, http.StatusOK},
		{"exactly at cap", 16, 16, http.StatusOK},
		{"one past cap", 16, 17, http.StatusRequestEntityTooLarge},
		{"huge cap small body", 50 << 20, 1024, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := MaxBody(tc.cap)(echoBody())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("b", tc.bodyBytes)))
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK && rec.Body.Len() != tc.bodyBytes {
				t.Fatalf("echoed %d bytes, want %d", rec.Body.Len(), tc.bodyBytes)
			}
		})
	}
}

func TestMaxBodyReadErrorType(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if err == nil {
			t.Fatal("read past the cap succeeded")
		}
		var mbe *http.MaxBytesError
		if !errors.As(err, &mbe) {
			t.Fatalf("error type = %T, want *http.MaxBytesError", err)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("b", 100)))
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMaxBodyBodylessGet(t *testing.T) {
	h := MaxBody(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chunk/0", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMaxBodyZeroCapAllowsEmptyBody(t *testing.T) {
	h := MaxBody(0)(echoBody())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")))
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("one byte: status = %d, want 413", rec.Code)
	}
}
