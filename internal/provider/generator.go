package provider

import (
	"fmt"
	"io"

	"github.com/keithlinneman/chunkd/internal/mediatype"
)

// GeneratorFunc produces content procedurally. It fills p with the bytes at
// off and returns the count written. The function must be a pure function
// of (len(p), off): the same arguments always produce the same bytes.
type GeneratorFunc func(p []byte, off int64) (int, error)

// Generator delegates chunk production to a GeneratorFunc. It holds no read
// state of its own, so Reset has nothing to rewind.
type Generator struct {
	size        int64
	contentType string
	fn          GeneratorFunc
	closed      bool
}

func NewGenerator(size int64, contentType string, fn GeneratorFunc) (*Generator, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil generator func", ErrParameter)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrParameter, size)
	}
	if contentType == "" {
		contentType = mediatype.DefaultType
	}
	return &Generator{size: size, contentType: contentType, fn: fn}, nil
}

func (g *Generator) ReadAt(p []byte, off int64) (int, error) {
	if g.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrParameter, off)
	}
	if off >= g.size {
		return 0, io.EOF
	}
	if remain := g.size - off; int64(len(p)) > remain {
		p = p[:remain]
	}
	n, err := g.fn(p, off)
	if err != nil {
		return 0, fmt.Errorf("%w: generator: %v", ErrRuntime, err)
	}
	if n > len(p) {
		return 0, fmt.Errorf("%w: generator wrote %d into %d-byte buffer", ErrRuntime, n, len(p))
	}
	if off+int64(n) >= g.size {
		return n, io.EOF
	}
	return n, nil
}

func (g *Generator) Size() int64 { return g.size }

func (g *Generator) ContentType() string { return g.contentType }

func (g *Generator) Reset() error {
	if g.closed {
		return ErrClosed
	}
	return nil
}

func (g *Generator) Ready() bool { return !g.closed && g.fn != nil }

func (g *Generator) Close() error {
	g.fn = nil
	g.closed = true
	return nil
}
