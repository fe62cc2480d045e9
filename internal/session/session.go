// Package session drives chunked delivery of one provider to one consumer.
// A session owns its provider exclusively: it is the only reader, it tracks
// the cursor and progress, and it closes the provider exactly once.
package session

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/provider"
)

// Options configure a session. A zero ChunkBytes selects the provider
// default; a zero Timeout disables the delivery deadline.
type Options struct {
	ChunkBytes int
	Timeout    time.Duration

	// Progress runs after every delivered chunk with the cumulative byte
	// count and the total size.
	Progress func(transferred, total int64)

	Logger log.Logger
}

// Session is a single pass over one provider's content. Sessions are not
// safe for concurrent use.
type Session struct {
	id          string
	p           provider.Provider
	size        int64
	contentType string

	chunk    int
	timeout  time.Duration
	progress func(transferred, total int64)
	logger   log.Logger

	started time.Time
	off     int64
	chunks  int
	closed  bool
}

// New takes exclusive ownership of p. The provider must be ready, and the
// caller must stop using it directly; Close releases it.
func New(p provider.Provider, opts Options) (*Session, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", provider.ErrParameter)
	}
	if !p.Ready() {
		return nil, provider.ErrNotReady
	}
	chunk, err := provider.NormalizeChunkSize(opts.ChunkBytes, 0)
	if err != nil {
		return nil, err
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", provider.ErrParameter)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Session{
		id:          uuid.NewString(),
		p:           p,
		size:        p.Size(),
		contentType: p.ContentType(),
		chunk:       chunk,
		timeout:     opts.Timeout,
		progress:    opts.Progress,
		logger:      logger,
		started:     time.Now(),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Size() int64 { return s.size }

func (s *Session) ContentType() string { return s.contentType }

// ChunkBytes returns the resolved chunk size for this session.
func (s *Session) ChunkBytes() int { return s.chunk }

// Transferred returns the cumulative bytes delivered so far.
func (s *Session) Transferred() int64 { return s.off }

// Chunks returns the number of non-empty chunks delivered so far.
func (s *Session) Chunks() int { return s.chunks }

func (s *Session) Elapsed() time.Duration { return time.Since(s.started) }

// Next fills buf with the next chunk and advances the cursor. At most the
// session chunk size is delivered per call even when buf is larger. The
// final chunk pairs its bytes with io.EOF; the deadline is checked here,
// at the chunk boundary, and never interrupts a read in flight.
func (s *Session) Next(buf []byte) (int, error) {
	if s.closed {
		return 0, provider.ErrClosed
	}
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty chunk buffer", provider.ErrParameter)
	}
	if s.timeout > 0 {
		if elapsed := time.Since(s.started); elapsed > s.timeout {
			return 0, fmt.Errorf("chunk deadline after %s: %w",
				elapsed.Round(time.Millisecond), context.DeadlineExceeded)
		}
	}
	if len(buf) > s.chunk {
		buf = buf[:s.chunk]
	}

	n, err := s.p.ReadAt(buf, s.off)
	if n > 0 {
		s.off += int64(n)
		s.chunks++
		if s.progress != nil {
			s.progress(s.off, s.size)
		}
	}
	return n, err
}

// WriteTo streams the remaining content into w chunk by chunk and returns
// the bytes written. Cancellation is checked between chunks; write
// failures come back wrapping provider.ErrTransport so they classify as
// transport errors rather than content errors.
func (s *Session) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	buf := make([]byte, s.chunk)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("stream canceled: %w", err)
		}
		n, rerr := s.Next(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("%w: %v", provider.ErrTransport, werr)
			}
			if wn < n {
				return written, fmt.Errorf("%w: short write (%d of %d)", provider.ErrTransport, wn, n)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// Close releases the provider. Safe to call more than once; only the
// first call closes.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug(context.Background(), "session closed",
		"session_id", s.id,
		"bytes", s.off,
		"total", s.size,
		"chunks", s.chunks,
		"elapsed_ms", time.Since(s.started).Milliseconds(),
	)
	return s.p.Close()
}
