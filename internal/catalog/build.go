// internal/catalog/build.go
//
// Build turns a catalog entry into a live provider. Entries describe what to
// serve; Build decides which provider variant delivers it: inline data
// becomes a memory provider, single sources become buffered or retrying
// providers, and multi-part entries become composites of buffered parts.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/keithlinneman/chunkd/internal/mediatype"
	"github.com/keithlinneman/chunkd/internal/provider"
	"github.com/keithlinneman/chunkd/internal/source"
)

// BuildDeps carries the external dependencies Build needs to resolve entry
// source refs. The zero value supports inline-data entries and file refs
// rooted at the process working directory.
type BuildDeps struct {
	// Source supplies the clients used to resolve source refs (S3 client,
	// HTTP client, file root).
	Source source.Deps

	// DefaultChunkBytes sizes buffered windows for entries that do not set
	// chunk_bytes. Zero means provider.DefaultChunkSize.
	DefaultChunkBytes int
}

// Build constructs a provider for a catalog entry. Each call returns a fresh
// provider owned by the caller; concurrent requests against the same entry
// must each build their own.
func Build(ctx context.Context, e *Entry, deps BuildDeps) (provider.Provider, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", provider.ErrParameter)
	}

	contentType := e.ContentType
	if contentType == "" {
		contentType = mediatype.ForPath(e.Path)
	}
	chunk := e.ChunkBytes
	if chunk == 0 {
		chunk = deps.DefaultChunkBytes
	}

	var (
		p   provider.Provider
		err error
	)
	switch {
	case e.Data != "":
		// []byte(e.Data) allocates, so the provider owns its bytes
		p, err = provider.NewMemory([]byte(e.Data), contentType)
	case e.Source != "":
		p, err = buildSource(ctx, e.Source, contentType, chunk, e.Retry, deps)
	case len(e.Parts) > 0:
		p, err = buildComposite(ctx, e.Parts, contentType, chunk, deps)
	default:
		// Validate rejects such entries; guard for callers bypassing it
		err = fmt.Errorf("%w: entry %q has no content", provider.ErrParameter, e.Path)
	}
	if err != nil {
		return nil, err
	}

	if e.Encoding != "" {
		enc, err := provider.NewEncoded(p, e.Encoding)
		if err != nil {
			p.Close()
			return nil, err
		}
		return enc, nil
	}
	return p, nil
}

// buildSource builds the provider for a single source ref. Retry entries get
// a retrying provider that reopens the source on read failures; everything
// else reads through a buffered window sized to the chunk size.
func buildSource(ctx context.Context, ref, contentType string, chunk int, retry bool, deps BuildDeps) (provider.Provider, error) {
	op, err := source.Resolve(ref, deps.Source)
	if err != nil {
		return nil, mapSourceErr(ref, err)
	}
	info, err := op.Stat(ctx)
	if err != nil {
		return nil, mapSourceErr(ref, err)
	}

	if retry {
		return provider.NewRetrying(ctx, op, info.Size, contentType)
	}

	rsc, err := op.Open(ctx)
	if err != nil {
		return nil, mapSourceErr(ref, err)
	}
	p, err := provider.NewBuffered(rsc, info.Size, contentType, chunk)
	if err != nil {
		rsc.Close()
		return nil, err
	}
	return p, nil
}

// buildComposite builds one buffered provider per part and joins them.
// Already-built parts are closed if a later part fails.
func buildComposite(ctx context.Context, parts []string, contentType string, chunk int, deps BuildDeps) (provider.Provider, error) {
	comp := provider.NewComposite(contentType)
	for i, ref := range parts {
		part, err := buildSource(ctx, ref, contentType, chunk, false, deps)
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("build part %d: %w", i, err)
		}
		if err := comp.AddPart(part); err != nil {
			part.Close()
			comp.Close()
			return nil, fmt.Errorf("add part %d: %w", i, err)
		}
	}
	return comp, nil
}

// mapSourceErr translates source package errors into provider error kinds so
// handlers can classify them with provider.CodeOf.
func mapSourceErr(ref string, err error) error {
	switch {
	case errors.Is(err, source.ErrNotExist):
		return fmt.Errorf("%w: source %q: %v", provider.ErrResource, ref, err)
	case errors.Is(err, source.ErrInvalidRef):
		return fmt.Errorf("%w: source %q: %v", provider.ErrParameter, ref, err)
	default:
		return fmt.Errorf("%w: source %q: %v", provider.ErrRuntime, ref, err)
	}
}
