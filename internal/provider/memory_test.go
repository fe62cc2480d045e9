package provider

import (
	"errors"
	"io"
	"testing"

	"github.com/keithlinneman/chunkd/internal/mediatype"
)

func TestMemoryChunking(t *testing.T) {
	p, err := NewMemory([]byte("0123456789"), "text/plain")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if got := p.Size(); got != 10 {
		t.Fatalf("Size = %d, want 10", got)
	}
	if got := p.ContentType(); got != "text/plain" {
		t.Fatalf("ContentType = %q, want %q", got, "text/plain")
	}

	want := []string{"0123", "4567", "89"}
	got := drain(t, p, 4)
	if len(got) != len(want) {
		t.Fatalf("chunks = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}

	// A read at the total size yields nothing but a clean end marker.
	n, err := p.ReadAt(make([]byte, 4), 10)
	if n != 0 || err != io.EOF {
		t.Errorf("ReadAt(10) = (%d, %v), want (0, EOF)", n, err)
	}

	// Reset has nothing to rewind and the walk repeats identically.
	if err := p.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	again := drain(t, p, 4)
	for i := range want {
		if again[i] != want[i] {
			t.Errorf("chunk %d after reset = %q, want %q", i, again[i], want[i])
		}
	}
}

func TestMemoryReadAt(t *testing.T) {
	p, err := NewMemory([]byte("0123456789"), "text/plain")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	tests := []struct {
		name    string
		off     int64
		bufSize int
		want    string
		wantErr error
	}{
		{name: "start of content", off: 0, bufSize: 4, want: "0123"},
		{name: "interior offset", off: 3, bufSize: 4, want: "3456"},
		{name: "short tail read pairs with EOF", off: 8, bufSize: 4, want: "89", wantErr: io.EOF},
		{name: "exact tail read pairs with EOF", off: 6, bufSize: 4, want: "6789", wantErr: io.EOF},
		{name: "offset at size", off: 10, bufSize: 4, wantErr: io.EOF},
		{name: "offset beyond size", off: 42, bufSize: 4, wantErr: io.EOF},
		{name: "negative offset", off: -1, bufSize: 4, wantErr: ErrParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.bufSize)
			n, err := p.ReadAt(buf, tt.off)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := string(buf[:n]); got != tt.want {
				t.Errorf("read %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMemoryBorrowAndCopy(t *testing.T) {
	src := []byte("abcdef")

	borrowed, err := NewMemory(src, "")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	copied, err := NewMemoryCopy(src, "")
	if err != nil {
		t.Fatalf("NewMemoryCopy: %v", err)
	}

	// Mutating the caller's slice shows through the borrowing provider
	// and not through the copying one.
	src[0] = 'X'

	buf := make([]byte, 6)
	if n, err := borrowed.ReadAt(buf, 0); err != io.EOF {
		t.Fatalf("borrowed ReadAt = (%d, %v)", n, err)
	}
	if got := string(buf); got != "Xbcdef" {
		t.Errorf("borrowed provider read %q, want %q", got, "Xbcdef")
	}

	if n, err := copied.ReadAt(buf, 0); err != io.EOF {
		t.Fatalf("copied ReadAt = (%d, %v)", n, err)
	}
	if got := string(buf); got != "abcdef" {
		t.Errorf("copying provider read %q, want %q", got, "abcdef")
	}
}

func TestMemoryValidation(t *testing.T) {
	if _, err := NewMemory(nil, ""); !errors.Is(err, ErrParameter) {
		t.Errorf("NewMemory(nil) err = %v, want ErrParameter", err)
	}
	if _, err := NewMemory([]byte{}, ""); !errors.Is(err, ErrParameter) {
		t.Errorf("NewMemory(empty) err = %v, want ErrParameter", err)
	}
	if _, err := NewMemoryCopy(nil, ""); !errors.Is(err, ErrParameter) {
		t.Errorf("NewMemoryCopy(nil) err = %v, want ErrParameter", err)
	}

	p, err := NewMemory([]byte("x"), "")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if got := p.ContentType(); got != mediatype.DefaultType {
		t.Errorf("default ContentType = %q, want %q", got, mediatype.DefaultType)
	}
}

func TestMemoryClose(t *testing.T) {
	p, err := NewMemory([]byte("abc"), "")
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if !p.Ready() {
		t.Fatal("new provider not ready")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.Ready() {
		t.Error("closed provider still ready")
	}
	if _, err := p.ReadAt(make([]byte, 1), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadAt after close err = %v, want ErrClosed", err)
	}
	if err := p.Reset(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset after close err = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
