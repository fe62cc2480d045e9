package provider

import (
	"fmt"
	"io"

	"github.com/keithlinneman/chunkd/internal/mediatype"
)

// Memory serves content from a byte slice.
type Memory struct {
	data        []byte
	contentType string
	closed      bool
}

// NewMemory returns a provider that borrows data. The caller must not
// mutate the slice while the provider is in use.
func NewMemory(data []byte, contentType string) (*Memory, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrParameter)
	}
	if contentType == "" {
		contentType = mediatype.DefaultType
	}
	return &Memory{data: data, contentType: contentType}, nil
}

// NewMemoryCopy returns a provider over its own copy of data, for callers
// that want to reuse or mutate the original slice.
func NewMemoryCopy(data []byte, contentType string) (*Memory, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	return NewMemory(cp, contentType)
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrParameter, off)
	}
	if off >= m.Size() {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if off+int64(n) >= m.Size() {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) Size() int64 { return int64(len(m.data)) }

func (m *Memory) ContentType() string { return m.contentType }

// Reset is a no-op: reads are a pure function of offset.
func (m *Memory) Reset() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Ready() bool { return !m.closed && len(m.data) > 0 }

func (m *Memory) Close() error {
	m.data = nil
	m.closed = true
	return nil
}
