package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/keithlinneman/chunkd/internal/mediatype"
)

// DefaultMaxRetries bounds consecutive reopen attempts before the provider
// gives up until an explicit Reset.
const DefaultMaxRetries = 3

// Retrying wraps an unreliable random-access source behind a reopenable
// handle. On a read or seek failure it reopens the handle and retries the
// operation once, up to a bounded number of consecutive recoveries; any
// successful non-empty read zeroes the counter.
type Retrying struct {
	opener      SourceOpener
	handle      io.ReadSeekCloser
	size        int64
	contentType string

	maxRetries int
	failures   int

	// pos tracks the handle position so in-order reads skip the seek.
	// -1 forces a seek after a failed or unknown position.
	pos int64

	// openCtx carries the provider's lifetime context into reopens, which
	// happen inside ReadAt where no context is available.
	openCtx context.Context

	closed bool
}

// RetryOption configures a Retrying provider.
type RetryOption func(*Retrying)

// WithMaxRetries overrides DefaultMaxRetries. n < 1 is ignored.
func WithMaxRetries(n int) RetryOption {
	return func(r *Retrying) {
		if n >= 1 {
			r.maxRetries = n
		}
	}
}

// NewRetrying opens the initial handle and returns the provider. A source
// that cannot be opened fails construction.
func NewRetrying(ctx context.Context, opener SourceOpener, size int64, contentType string, opts ...RetryOption) (*Retrying, error) {
	if opener == nil {
		return nil, fmt.Errorf("%w: nil opener", ErrParameter)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrParameter, size)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if contentType == "" {
		contentType = mediatype.DefaultType
	}
	r := &Retrying{
		opener:      opener,
		size:        size,
		contentType: contentType,
		maxRetries:  DefaultMaxRetries,
		openCtx:     ctx,
	}
	for _, o := range opts {
		o(r)
	}
	h, err := opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open source: %v", ErrResource, err)
	}
	r.handle = h
	return r, nil
}

func (r *Retrying) ReadAt(p []byte, off int64) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrParameter, off)
	}
	if off >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	// Once the bound is hit, every read fails until an explicit Reset.
	if r.failures >= r.maxRetries {
		return 0, fmt.Errorf("%w: retries exhausted (%d)", ErrRuntime, r.failures)
	}

	if remain := r.size - off; int64(len(p)) > remain {
		p = p[:remain]
	}

	n, err := r.tryRead(p, off)
	if err != nil {
		if rerr := r.reopen(); rerr != nil {
			return 0, rerr
		}
		n, err = r.tryRead(p, off)
		if err != nil {
			return 0, fmt.Errorf("%w: read after reopen at %d: %v", ErrRuntime, off, err)
		}
	}

	if n > 0 {
		r.failures = 0
	}
	if off+int64(n) >= r.size {
		return n, io.EOF
	}
	return n, nil
}

// tryRead performs one positioned full read against the current handle.
func (r *Retrying) tryRead(p []byte, off int64) (int, error) {
	if r.pos != off {
		if _, err := r.handle.Seek(off, io.SeekStart); err != nil {
			r.pos = -1
			return 0, err
		}
		r.pos = off
	}
	n, err := io.ReadFull(r.handle, p)
	if err != nil {
		r.pos = -1
		return 0, err
	}
	r.pos = off + int64(n)
	return n, nil
}

// reopen closes the current handle and opens a fresh one. A successful
// reopen counts against the retry bound; a failed one leaves the counter
// alone since no recovery happened.
func (r *Retrying) reopen() error {
	_ = r.handle.Close()
	h, err := r.opener.Open(r.openCtx)
	if err != nil {
		return fmt.Errorf("%w: reopen: %v", ErrRuntime, err)
	}
	r.failures++
	r.handle = h
	r.pos = 0
	return nil
}

func (r *Retrying) Size() int64 { return r.size }

func (r *Retrying) ContentType() string { return r.contentType }

// Reset rewinds the source and zeroes the retry counter.
func (r *Retrying) Reset() error {
	if r.closed {
		return ErrClosed
	}
	r.failures = 0
	if _, err := r.handle.Seek(0, io.SeekStart); err != nil {
		r.pos = -1
		return fmt.Errorf("%w: rewind: %v", ErrRuntime, err)
	}
	r.pos = 0
	return nil
}

func (r *Retrying) Ready() bool { return !r.closed && r.handle != nil }

func (r *Retrying) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.handle.Close()
}
