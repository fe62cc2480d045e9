package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/keithlinneman/chunkd/internal/provider"
)

func testContent(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func memoryProvider(t *testing.T, data []byte) *provider.Memory {
	t.Helper()
	p, err := provider.NewMemory(data, "application/octet-stream")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return p
}

// closeCounter wraps a provider and counts Close calls.
type closeCounter struct {
	provider.Provider
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.Provider.Close()
}

// failWriter accepts a number of writes and then fails.
type failWriter struct {
	budget int
}

func (w *failWriter) Write(p []byte) (int, error) {
	if w.budget == 0 {
		return 0, errors.New("broken pipe")
	}
	w.budget--
	return len(p), nil
}

func TestSessionChunkWalk(t *testing.T) {
	data := testContent(1300)

	type step struct {
		transferred int64
		total       int64
	}
	var progress []step

	s, err := New(memoryProvider(t, data), Options{
		ChunkBytes: 512,
		Progress: func(transferred, total int64) {
			progress = append(progress, step{transferred, total})
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.ID() == "" {
		t.Error("empty session id")
	}
	if got := s.Size(); got != 1300 {
		t.Errorf("Size = %d, want 1300", got)
	}
	if got := s.ChunkBytes(); got != 512 {
		t.Errorf("ChunkBytes = %d, want 512", got)
	}

	// The buffer is larger than the chunk size, so each call is capped at
	// the configured 512 and the walk takes three chunks.
	buf := make([]byte, provider.MaxChunkSize)
	var got []byte
	var sizes []int
	for {
		n, err := s.Next(buf)
		if n > 0 {
			got = append(got, buf[:n]...)
			sizes = append(sizes, n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	if !bytes.Equal(got, data) {
		t.Errorf("delivered %d bytes, want %d matching source", len(got), len(data))
	}
	wantSizes := []int{512, 512, 276}
	if len(sizes) != len(wantSizes) {
		t.Fatalf("chunk sizes = %v, want %v", sizes, wantSizes)
	}
	for i := range wantSizes {
		if sizes[i] != wantSizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i, sizes[i], wantSizes[i])
		}
	}

	wantProgress := []step{{512, 1300}, {1024, 1300}, {1300, 1300}}
	if len(progress) != len(wantProgress) {
		t.Fatalf("progress = %v, want %v", progress, wantProgress)
	}
	for i := range wantProgress {
		if progress[i] != wantProgress[i] {
			t.Errorf("progress %d = %v, want %v", i, progress[i], wantProgress[i])
		}
	}

	if got := s.Transferred(); got != 1300 {
		t.Errorf("Transferred = %d, want 1300", got)
	}
	if got := s.Chunks(); got != 3 {
		t.Errorf("Chunks = %d, want 3", got)
	}
}

func TestSessionValidation(t *testing.T) {
	data := testContent(100)

	if _, err := New(nil, Options{}); !errors.Is(err, provider.ErrParameter) {
		t.Errorf("nil provider err = %v, want ErrParameter", err)
	}

	closed := memoryProvider(t, data)
	closed.Close()
	if _, err := New(closed, Options{}); !errors.Is(err, provider.ErrNotReady) {
		t.Errorf("closed provider err = %v, want ErrNotReady", err)
	}

	if _, err := New(memoryProvider(t, data), Options{ChunkBytes: 100}); !errors.Is(err, provider.ErrChunkTooSmall) {
		t.Errorf("tiny chunk err = %v, want ErrChunkTooSmall", err)
	}
	if _, err := New(memoryProvider(t, data), Options{ChunkBytes: provider.MaxChunkSize * 2}); !errors.Is(err, provider.ErrChunkTooLarge) {
		t.Errorf("huge chunk err = %v, want ErrChunkTooLarge", err)
	}
	if _, err := New(memoryProvider(t, data), Options{Timeout: -time.Second}); !errors.Is(err, provider.ErrParameter) {
		t.Errorf("negative timeout err = %v, want ErrParameter", err)
	}

	// Zero chunk bytes selects the default.
	s, err := New(memoryProvider(t, data), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if got := s.ChunkBytes(); got != provider.DefaultChunkSize {
		t.Errorf("default ChunkBytes = %d, want %d", got, provider.DefaultChunkSize)
	}
}

func TestSessionDeadline(t *testing.T) {
	s, err := New(memoryProvider(t, testContent(5000)), Options{
		ChunkBytes: 512,
		Timeout:    time.Nanosecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// The first chunk boundary is already past the deadline.
	time.Sleep(time.Millisecond)
	_, err = s.Next(make([]byte, 512))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next err = %v, want DeadlineExceeded", err)
	}
	if got := provider.CodeOf(err); got != provider.CodeTimeout {
		t.Errorf("CodeOf = %v, want CodeTimeout", got)
	}
}

func TestSessionWriteTo(t *testing.T) {
	data := testContent(9000)
	s, err := New(memoryProvider(t, data), Options{ChunkBytes: 1024})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	var sink bytes.Buffer
	written, err := s.WriteTo(t.Context(), &sink)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if written != int64(len(data)) {
		t.Errorf("written = %d, want %d", written, len(data))
	}
	if !bytes.Equal(sink.Bytes(), data) {
		t.Error("sink content differs from source")
	}
}

func TestSessionWriteToCancel(t *testing.T) {
	s, err := New(memoryProvider(t, testContent(5000)), Options{ChunkBytes: 512})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var sink bytes.Buffer
	written, err := s.WriteTo(ctx, &sink)
	if written != 0 {
		t.Errorf("written = %d, want 0", written)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	if got := provider.CodeOf(err); got != provider.CodeTransportError {
		t.Errorf("CodeOf = %v, want CodeTransportError", got)
	}
}

func TestSessionWriteToBrokenSink(t *testing.T) {
	s, err := New(memoryProvider(t, testContent(5000)), Options{ChunkBytes: 512})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	written, err := s.WriteTo(t.Context(), &failWriter{budget: 2})
	if !errors.Is(err, provider.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if written != 1024 {
		t.Errorf("written = %d, want 1024", written)
	}
	if got := provider.CodeOf(err); got != provider.CodeTransportError {
		t.Errorf("CodeOf = %v, want CodeTransportError", got)
	}
}

func TestSessionClose(t *testing.T) {
	inner := memoryProvider(t, testContent(100))
	counted := &closeCounter{Provider: inner}
	s, err := New(counted, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if counted.closes != 1 {
		t.Errorf("provider closed %d times, want 1", counted.closes)
	}

	if _, err := s.Next(make([]byte, 512)); !errors.Is(err, provider.ErrClosed) {
		t.Errorf("Next after close err = %v, want ErrClosed", err)
	}

	// Identity stays readable after close.
	if got := s.Size(); got != 100 {
		t.Errorf("Size after close = %d, want 100", got)
	}
	if got := s.ContentType(); got != "application/octet-stream" {
		t.Errorf("ContentType after close = %q", got)
	}
}

func TestSessionIDsUnique(t *testing.T) {
	a, err := New(memoryProvider(t, testContent(10)), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	b, err := New(memoryProvider(t, testContent(10)), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if a.ID() == b.ID() {
		t.Errorf("sessions share id %q", a.ID())
	}
}
