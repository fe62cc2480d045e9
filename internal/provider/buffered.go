package provider

import (
	"fmt"
	"io"

	"github.com/keithlinneman/chunkd/internal/mediatype"
)

// Buffered wraps a seekable random-access source with a fixed-capacity
// window, so repeated small reads against the same region cost one
// underlying fill instead of one storage operation each.
type Buffered struct {
	src         io.ReadSeeker
	size        int64
	contentType string

	// window holds src bytes [winOff, winOff+winLen).
	window []byte
	winOff int64
	winLen int

	closed bool
}

// NewBuffered wraps an open source of a known size. capacity 0 selects
// DefaultChunkSize; out-of-bounds capacities fail construction. The
// provider takes ownership of src and closes it (when it is an io.Closer)
// on Close.
func NewBuffered(src io.ReadSeeker, size int64, contentType string, capacity int) (*Buffered, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrParameter)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrParameter, size)
	}
	capacity, err := NormalizeChunkSize(capacity, 0)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = mediatype.DefaultType
	}
	return &Buffered{
		src:         src,
		size:        size,
		contentType: contentType,
		window:      make([]byte, capacity),
	}, nil
}

func (b *Buffered) ReadAt(p []byte, off int64) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrParameter, off)
	}
	if off >= b.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if off < b.winOff || off >= b.winOff+int64(b.winLen) {
		if err := b.fill(off); err != nil {
			return 0, err
		}
	}

	lo := int(off - b.winOff)
	n := copy(p, b.window[lo:b.winLen])
	if off+int64(n) >= b.size {
		return n, io.EOF
	}
	return n, nil
}

// fill seeks the source to off and loads up to one window of bytes.
// On any failure the window is invalidated so a later read refills.
func (b *Buffered) fill(off int64) error {
	b.winLen = 0
	if _, err := b.src.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", ErrRuntime, off, err)
	}

	want := min(int64(len(b.window)), b.size-off)
	n, err := io.ReadFull(b.src, b.window[:want])
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("%w: fill at %d: %v", ErrRuntime, off, err)
	}
	// A short fill is fine: the source ended early and the window simply
	// covers less. Anything else is a real read failure.
	if err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: fill at %d: %v", ErrRuntime, off, err)
	}

	b.winOff = off
	b.winLen = n
	return nil
}

func (b *Buffered) Size() int64 { return b.size }

func (b *Buffered) ContentType() string { return b.contentType }

// Reset rewinds the source and invalidates the window.
func (b *Buffered) Reset() error {
	if b.closed {
		return ErrClosed
	}
	b.winLen = 0
	if _, err := b.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind: %v", ErrRuntime, err)
	}
	return nil
}

func (b *Buffered) Ready() bool { return !b.closed && b.src != nil }

func (b *Buffered) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.window = nil
	if c, ok := b.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
