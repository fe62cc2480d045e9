package source

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func blobServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blob.bin", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob.bin", time.Unix(0, 0), bytes.NewReader(data))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStatAndRead(t *testing.T) {
	data := make([]byte, 5000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	srv := blobServer(t, data)
	h := NewHTTP(srv.Client(), srv.URL+"/blob.bin")

	info, err := h.Stat(t.Context())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5000 {
		t.Errorf("Size = %d, want 5000", info.Size)
	}
	if info.Name != "blob.bin" {
		t.Errorf("Name = %q, want %q", info.Name, "blob.bin")
	}

	cur, err := h.Open(t.Context())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	buf := make([]byte, 100)
	if _, err := io.ReadFull(cur, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, data[:100]) {
		t.Error("first read returned wrong bytes")
	}

	// A forward seek drops the stream and the next read issues a ranged
	// request from the new position.
	if _, err := cur.Seek(2500, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := io.ReadFull(cur, buf); err != nil {
		t.Fatalf("read after seek: %v", err)
	}
	if !bytes.Equal(buf, data[2500:2600]) {
		t.Error("ranged read returned wrong bytes")
	}

	// Positioned at the end, reads report EOF without a request.
	if _, err := cur.Seek(0, io.SeekEnd); err != nil {
		t.Fatalf("seek to end: %v", err)
	}
	if n, err := cur.Read(buf); n != 0 || err != io.EOF {
		t.Errorf("read at end = (%d, %v), want (0, EOF)", n, err)
	}
}

func TestHTTPFullWalk(t *testing.T) {
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i % 239)
	}
	srv := blobServer(t, data)
	h := NewHTTP(srv.Client(), srv.URL+"/blob.bin")

	cur, err := h.Open(t.Context())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	got, err := io.ReadAll(cur)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read %d bytes, want %d matching source", len(got), len(data))
	}
}

func TestHTTPNotExist(t *testing.T) {
	srv := blobServer(t, []byte("x"))
	h := NewHTTP(srv.Client(), srv.URL+"/nope.bin")

	if _, err := h.Stat(t.Context()); !errors.Is(err, ErrNotExist) {
		t.Errorf("Stat err = %v, want ErrNotExist", err)
	}
	if _, err := h.Open(t.Context()); !errors.Is(err, ErrNotExist) {
		t.Errorf("Open err = %v, want ErrNotExist", err)
	}
}

func TestHTTPRangeIgnored(t *testing.T) {
	data := []byte(strings.Repeat("z", 100))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always the whole body with a 200, whatever the Range header says.
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		if r.Method != http.MethodHead {
			w.Write(data)
		}
	}))
	t.Cleanup(srv.Close)

	h := NewHTTP(srv.Client(), srv.URL+"/blob.bin")
	cur, err := h.Open(t.Context())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cur.Close()

	if _, err := cur.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, err = cur.Read(make([]byte, 10))
	if err == nil || !strings.Contains(err.Error(), "ignored range") {
		t.Errorf("read err = %v, want range rejection", err)
	}
}
