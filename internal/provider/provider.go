package provider

import (
	"context"
	"io"
)

// Chunk size policy. A requested size of 0 always means "use the configured
// default"; anything outside [MinChunkSize, MaxChunkSize] is rejected before
// any handler or provider state is touched.
const (
	DefaultChunkSize = 4096
	MinChunkSize     = 512
	MaxChunkSize     = 8192
)

// Provider supplies content as offset-addressed chunks.
//
// ReadAt reads up to len(p) bytes starting at off. Unlike io.ReaderAt, a
// read may return fewer than len(p) bytes with a nil error (a window or
// part boundary intervened); the caller continues at the advanced offset.
// A read at off >= Size returns (0, io.EOF), and a short read that reaches
// the end of content pairs its count with io.EOF. Failures return an error
// wrapping one of the kind sentinels and never io.EOF, so end-of-content
// and failure are always distinguishable.
//
// Size and ContentType are fixed for the provider's lifetime once it is
// ready. Reset rewinds position, window, and retry state without changing
// identity. Close releases owned resources; a closed provider fails all
// further operations with ErrClosed and never becomes ready again.
//
// Providers are not safe for concurrent use. A session owns its provider
// exclusively and issues one read at a time.
type Provider interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
	ContentType() string
	Reset() error
	Ready() bool
	Close() error
}

// SourceOpener opens (and reopens) a handle onto a random-access byte
// source. Implemented by the source package; declared here so provider
// depends only on what it consumes.
type SourceOpener interface {
	Open(ctx context.Context) (io.ReadSeekCloser, error)
}

// NormalizeChunkSize resolves a requested chunk size against the bounds.
// n == 0 selects def, and a zero def falls back to DefaultChunkSize, so
// callers without explicit configuration still get the standard chunking.
func NormalizeChunkSize(n, def int) (int, error) {
	if n == 0 {
		n = def
		if n == 0 {
			n = DefaultChunkSize
		}
	}
	if n < MinChunkSize {
		return 0, ErrChunkTooSmall
	}
	if n > MaxChunkSize {
		return 0, ErrChunkTooLarge
	}
	return n, nil
}
