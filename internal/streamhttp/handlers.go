package streamhttp

import (
	"context"
	"errors"
	"fmt"

	"github.com/keithlinneman/chunkd/internal/catalog"
	"github.com/keithlinneman/chunkd/internal/mediatype"
	"github.com/keithlinneman/chunkd/internal/provider"
	"github.com/keithlinneman/chunkd/internal/source"
)

// RouteOption tunes one registration. Options that do not apply to the
// chosen Handle method are rejected rather than ignored.
type RouteOption func(*routeConfig)

type routeConfig struct {
	chunkBytes  int
	contentType string
	retry       bool
}

// WithChunkBytes overrides the delivery chunk size for this route.
func WithChunkBytes(n int) RouteOption {
	return func(c *routeConfig) { c.chunkBytes = n }
}

// WithContentType overrides the content type inferred from the source
// reference. Only valid for HandleFile.
func WithContentType(ct string) RouteOption {
	return func(c *routeConfig) { c.contentType = ct }
}

// WithRetry streams the file through a reopening provider instead of a
// windowed one. Only valid for HandleFile.
func WithRetry() RouteOption {
	return func(c *routeConfig) { c.retry = true }
}

func newRouteConfig(opts []RouteOption) routeConfig {
	var c routeConfig
	for _, o := range opts {
		o(&c)
	}
	return c
}

// rejectFileOnly fails registrations that pass file-route options to a
// non-file Handle method.
func rejectFileOnly(c routeConfig) error {
	if c.contentType != "" {
		return fmt.Errorf("%w: WithContentType only applies to file routes", provider.ErrParameter)
	}
	if c.retry {
		return fmt.Errorf("%w: WithRetry only applies to file routes", provider.ErrParameter)
	}
	return nil
}

// HandleProvider installs p at path. The registry takes ownership: p is
// shared across requests, one session at a time, and closed by
// Registry.Close. Nothing is installed when any check fails.
func (reg *Registry) HandleProvider(path string, p provider.Provider, opts ...RouteOption) (provider.Code, error) {
	cfg := newRouteConfig(opts)
	if err := validateRoutePath(path); err != nil {
		return provider.CodeOf(err), err
	}
	if p == nil {
		err := fmt.Errorf("%w: nil provider", provider.ErrParameter)
		return provider.CodeOf(err), err
	}
	if err := rejectFileOnly(cfg); err != nil {
		return provider.CodeOf(err), err
	}
	chunk, err := reg.resolveChunk(cfg.chunkBytes)
	if err != nil {
		return provider.CodeOf(err), err
	}
	if !p.Ready() {
		return provider.CodeOf(provider.ErrNotReady), provider.ErrNotReady
	}

	shared := newSharedProvider(p)
	rt := &route{
		path:       path,
		chunkBytes: chunk,
		encoding:   providerEncoding(p),
		build:      shared.acquire,
	}
	return reg.install(rt, shared)
}

// HandleProviderFunc installs a builder that produces a fresh provider
// per request. Build failures surface on the request that hits them.
func (reg *Registry) HandleProviderFunc(path string, build ProviderFunc, opts ...RouteOption) (provider.Code, error) {
	cfg := newRouteConfig(opts)
	if err := validateRoutePath(path); err != nil {
		return provider.CodeOf(err), err
	}
	if build == nil {
		err := fmt.Errorf("%w: nil provider func", provider.ErrParameter)
		return provider.CodeOf(err), err
	}
	if err := rejectFileOnly(cfg); err != nil {
		return provider.CodeOf(err), err
	}
	chunk, err := reg.resolveChunk(cfg.chunkBytes)
	if err != nil {
		return provider.CodeOf(err), err
	}

	rt := &route{path: path, chunkBytes: chunk, build: build}
	return reg.install(rt, nil)
}

// HandleFunc installs procedural content: fn produces the bytes at each
// offset, size and contentType describe the body. A fresh generator is
// built per request.
func (reg *Registry) HandleFunc(path string, size int64, contentType string, fn provider.GeneratorFunc, opts ...RouteOption) (provider.Code, error) {
	cfg := newRouteConfig(opts)
	if err := validateRoutePath(path); err != nil {
		return provider.CodeOf(err), err
	}
	if err := rejectFileOnly(cfg); err != nil {
		return provider.CodeOf(err), err
	}
	chunk, err := reg.resolveChunk(cfg.chunkBytes)
	if err != nil {
		return provider.CodeOf(err), err
	}
	// Probe the constructor once so bad arguments fail here, not on the
	// first request.
	probe, err := provider.NewGenerator(size, contentType, fn)
	if err != nil {
		return provider.CodeOf(err), err
	}
	probe.Close()

	rt := &route{
		path:       path,
		chunkBytes: chunk,
		build: func(context.Context) (provider.Provider, error) {
			return provider.NewGenerator(size, contentType, fn)
		},
	}
	return reg.install(rt, nil)
}

// HandleFile installs a route backed by a source reference (file, s3, or
// http URI). The source is probed at registration so a missing file fails
// here; size and bytes are read fresh on each request.
func (reg *Registry) HandleFile(ctx context.Context, path, ref string, opts ...RouteOption) (provider.Code, error) {
	cfg := newRouteConfig(opts)
	if err := validateRoutePath(path); err != nil {
		return provider.CodeOf(err), err
	}
	chunk, err := reg.resolveChunk(cfg.chunkBytes)
	if err != nil {
		return provider.CodeOf(err), err
	}
	op, err := source.Resolve(ref, reg.opts.Source)
	if err != nil {
		err = fmt.Errorf("%w: source %q: %v", provider.ErrParameter, ref, err)
		return provider.CodeOf(err), err
	}
	if _, err := op.Stat(ctx); err != nil {
		if errors.Is(err, source.ErrNotExist) {
			err = fmt.Errorf("%w: source %q: %v", provider.ErrResource, ref, err)
		} else {
			err = fmt.Errorf("%w: stat %q: %v", provider.ErrRuntime, ref, err)
		}
		return provider.CodeOf(err), err
	}

	contentType := cfg.contentType
	if contentType == "" {
		contentType = mediatype.ForPath(ref)
	}
	entry := catalog.Entry{
		Path:        path,
		Source:      ref,
		ContentType: contentType,
		ChunkBytes:  chunk,
		Retry:       cfg.retry,
	}
	rt := &route{
		path:       path,
		chunkBytes: chunk,
		build: func(ctx context.Context) (provider.Provider, error) {
			return catalog.Build(ctx, &entry, reg.buildDeps())
		},
	}
	return reg.install(rt, nil)
}

func providerEncoding(p provider.Provider) string {
	if e, ok := p.(interface{ Encoding() string }); ok {
		return e.Encoding()
	}
	return ""
}
