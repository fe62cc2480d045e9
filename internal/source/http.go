package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
)

// HTTP opens ranged read handles onto one URL. Seeks past the start only
// work against servers that honor Range requests.
type HTTP struct {
	client *http.Client
	url    string
}

func NewHTTP(client *http.Client, url string) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, url: url}
}

func (h *HTTP) Open(ctx context.Context) (io.ReadSeekCloser, error) {
	info, err := h.Stat(ctx)
	if err != nil {
		return nil, err
	}
	return &httpCursor{
		ctx:    ctx,
		client: h.client,
		url:    h.url,
		size:   info.Size,
	}, nil
}

func (h *HTTP) Stat(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url, nil)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("head %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Info{}, fmt.Errorf("%w: %s", ErrNotExist, h.url)
	}
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("head %s: status %d", h.url, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return Info{}, fmt.Errorf("head %s: content length unknown", h.url)
	}
	return Info{Name: path.Base(req.URL.Path), Size: resp.ContentLength}, nil
}

// httpCursor reads the URL sequentially through one ranged GET body,
// dropping the stream whenever a seek moves the position.
type httpCursor struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64
	pos    int64
	body   io.ReadCloser
}

func (c *httpCursor) Read(p []byte) (int, error) {
	if c.pos >= c.size {
		return 0, io.EOF
	}
	if c.body == nil {
		if err := c.open(); err != nil {
			return 0, err
		}
	}
	n, err := c.body.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *httpCursor) open() error {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	if c.pos > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", c.pos))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s at %d: %w", c.url, c.pos, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return fmt.Errorf("%w: %s", ErrNotExist, c.url)
	case c.pos == 0 && resp.StatusCode == http.StatusOK:
	case c.pos > 0 && resp.StatusCode == http.StatusPartialContent:
	case c.pos > 0 && resp.StatusCode == http.StatusOK:
		// A 200 against a range request means the server ignored it and
		// is sending the whole body, which would corrupt the stream.
		resp.Body.Close()
		return fmt.Errorf("get %s: server ignored range request", c.url)
	default:
		resp.Body.Close()
		return fmt.Errorf("get %s at %d: status %d", c.url, c.pos, resp.StatusCode)
	}

	c.body = resp.Body
	return nil
}

func (c *httpCursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = c.pos + offset
	case io.SeekEnd:
		abs = c.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	if abs != c.pos && c.body != nil {
		_ = c.body.Close()
		c.body = nil
	}
	c.pos = abs
	return abs, nil
}

func (c *httpCursor) Close() error {
	if c.body == nil {
		return nil
	}
	err := c.body.Close()
	c.body = nil
	return err
}
