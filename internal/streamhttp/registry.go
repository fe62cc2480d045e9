package streamhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/keithlinneman/chunkd/internal/catalog"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/pathutil"
	"github.com/keithlinneman/chunkd/internal/provider"
)

// ProviderFunc builds a fresh provider for one request. The registry hands
// the result to a session, which owns it and closes it.
type ProviderFunc func(ctx context.Context) (provider.Provider, error)

// route is one installed path. build runs per request; chunkBytes is
// already resolved against the registry default.
type route struct {
	path       string
	method     string // "" serves GET and HEAD; "HEAD" restricts to HEAD
	chunkBytes int
	encoding   string
	build      ProviderFunc
}

// Registry maps request paths to content providers and serves them as
// chunked HTTP responses. Programmatic routes are installed with the
// Handle methods; catalog entries are resolved per request against the
// active snapshot, so a catalog swap needs no re-registration.
type Registry struct {
	opts    Options
	logger  log.Logger
	metrics Metrics

	mu     sync.RWMutex
	routes map[string]*route
	owned  []io.Closer
	closed bool
}

func New(opts Options) (*Registry, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Registry{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		routes:  make(map[string]*route),
	}, nil
}

// Close releases every provider the registry owns. Routes stay installed
// but requests against owned providers fail once they are closed.
func (reg *Registry) Close() error {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return nil
	}
	reg.closed = true
	owned := reg.owned
	reg.owned = nil
	reg.mu.Unlock()

	var errs []error
	for _, c := range owned {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Routes returns the number of installed programmatic routes.
func (reg *Registry) Routes() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.routes)
}

// install adds a fully validated route. owned, if non-nil, is closed by
// Registry.Close.
func (reg *Registry) install(rt *route, owned io.Closer) (provider.Code, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		err := fmt.Errorf("registry closed: %w", provider.ErrClosed)
		return provider.CodeOf(err), err
	}
	if _, exists := reg.routes[rt.path]; exists {
		err := fmt.Errorf("%w: path %q already registered", provider.ErrParameter, rt.path)
		return provider.CodeOf(err), err
	}
	reg.routes[rt.path] = rt
	if owned != nil {
		reg.owned = append(reg.owned, owned)
	}
	reg.logger.Debug(context.Background(), "route registered",
		"path", rt.path,
		"chunk_bytes", rt.chunkBytes,
	)
	return provider.CodeOK, nil
}

// resolveChunk validates a per-route chunk size against the bounds and
// falls back to the registry default for zero.
func (reg *Registry) resolveChunk(n int) (int, error) {
	return provider.NormalizeChunkSize(n, reg.opts.DefaultChunkBytes)
}

// validateRoutePath applies the same path rules the catalog enforces on
// its entries.
func validateRoutePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", provider.ErrParameter)
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: path %q is not absolute", provider.ErrParameter, p)
	}
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") {
		return fmt.Errorf("%w: path %q contains forbidden characters", provider.ErrParameter, p)
	}
	if pathutil.HasDotSegments(p) {
		return fmt.Errorf("%w: path %q contains dot segments", provider.ErrParameter, p)
	}
	return nil
}

// entryRoute adapts a catalog entry into a route on the fly. The entry
// pointer stays valid for the life of the request even if the snapshot is
// swapped underneath, so in-flight builds are unaffected.
func (reg *Registry) entryRoute(e *catalog.Entry) *route {
	chunk := e.ChunkBytes
	if chunk == 0 {
		chunk = reg.opts.DefaultChunkBytes
	}
	return &route{
		path:       e.Path,
		method:     e.Method,
		chunkBytes: chunk,
		encoding:   e.Encoding,
		build: func(ctx context.Context) (provider.Provider, error) {
			return catalog.Build(ctx, e, reg.buildDeps())
		},
	}
}

func (reg *Registry) buildDeps() catalog.BuildDeps {
	return catalog.BuildDeps{
		Source:            reg.opts.Source,
		DefaultChunkBytes: reg.opts.DefaultChunkBytes,
	}
}
