package provider

import (
	"fmt"
	"io"
	"sort"

	"github.com/keithlinneman/chunkd/internal/mediatype"
)

type part struct {
	p     Provider
	start int64
	size  int64
}

// Composite concatenates providers into one contiguous address space.
// Parts are contiguous and non-overlapping, ordered by start offset, and
// owned by the composite once added: Close closes every part.
type Composite struct {
	contentType string
	parts       []part
	total       int64
	closed      bool
}

func NewComposite(contentType string) *Composite {
	if contentType == "" {
		contentType = mediatype.DefaultType
	}
	return &Composite{contentType: contentType}
}

// AddPart appends a ready provider at the current end of the address
// space. A nil or not-ready part is rejected and the composite is left
// unchanged.
func (c *Composite) AddPart(p Provider) error {
	if c.closed {
		return ErrClosed
	}
	if p == nil {
		return fmt.Errorf("%w: nil part", ErrParameter)
	}
	if !p.Ready() {
		return fmt.Errorf("%w: part %d", ErrNotReady, len(c.parts))
	}
	size := p.Size()
	c.parts = append(c.parts, part{p: p, start: c.total, size: size})
	c.total += size
	return nil
}

// Parts returns the number of parts.
func (c *Composite) Parts() int { return len(c.parts) }

func (c *Composite) ReadAt(p []byte, off int64) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrParameter, off)
	}
	if off >= c.total {
		return 0, io.EOF
	}

	// Last part whose range starts at or before off. With contiguous parts
	// this is the part containing off; zero-size parts share a start with
	// their successor and lose the tie, which is what we want.
	i := sort.Search(len(c.parts), func(i int) bool { return c.parts[i].start > off }) - 1
	pt := c.parts[i]
	local := off - pt.start

	// Clamp to the part remainder: one read never spans two parts. The
	// caller continues at the advanced offset to reach the next part.
	limit := min(int64(len(p)), pt.size-local)
	n, err := pt.p.ReadAt(p[:limit], local)
	if err != nil && err != io.EOF {
		return 0, err
	}

	// A part-local EOF inside the composite is not end-of-content.
	if err == io.EOF && off+int64(n) < c.total {
		err = nil
	}
	return n, err
}

func (c *Composite) Size() int64 { return c.total }

func (c *Composite) ContentType() string { return c.contentType }

// Reset resets every part. All parts are attempted; the first error wins.
func (c *Composite) Reset() error {
	if c.closed {
		return ErrClosed
	}
	var first error
	for i := range c.parts {
		if err := c.parts[i].p.Reset(); err != nil && first == nil {
			first = fmt.Errorf("reset part %d: %w", i, err)
		}
	}
	return first
}

func (c *Composite) Ready() bool { return !c.closed && len(c.parts) > 0 }

func (c *Composite) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var first error
	for i := range c.parts {
		if err := c.parts[i].p.Close(); err != nil && first == nil {
			first = fmt.Errorf("close part %d: %w", i, err)
		}
	}
	c.parts = nil
	return first
}
