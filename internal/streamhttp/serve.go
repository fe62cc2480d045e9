package streamhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/keithlinneman/chunkd/internal/provider"
	"github.com/keithlinneman/chunkd/internal/session"
)

// lookupStatus distinguishes "no such path" from "catalog not loaded yet".
type lookupStatus int

const (
	lookupFound lookupStatus = iota
	lookupNotFound
	lookupNotReady
)

func (reg *Registry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// delivery is read-only; GET and HEAD are the whole surface
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rt, status := reg.lookup(r.URL.Path)
	switch status {
	case lookupNotReady:
		reg.serveUnavailable(w)
		return
	case lookupNotFound:
		reg.serveNotFound(w)
		return
	}

	// catalog entries may restrict themselves to HEAD
	if rt.method == http.MethodHead && r.Method != http.MethodHead {
		w.Header().Set("Allow", "HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	reg.serve(w, r, rt)
}

// lookup resolves a request path, programmatic routes first, then the
// active catalog snapshot. A configured catalog with no snapshot yet maps
// to lookupNotReady so unknown paths return 503 instead of 404 while
// content is still loading.
func (reg *Registry) lookup(path string) (*route, lookupStatus) {
	reg.mu.RLock()
	rt, ok := reg.routes[path]
	reg.mu.RUnlock()
	if ok {
		return rt, lookupFound
	}
	if reg.opts.Catalog == nil {
		return nil, lookupNotFound
	}
	snap, ok := reg.opts.Catalog.Get()
	if !ok {
		return nil, lookupNotReady
	}
	e, ok := snap.Catalog.Lookup(path)
	if !ok {
		return nil, lookupNotFound
	}
	return reg.entryRoute(e), lookupFound
}

func (reg *Registry) serve(w http.ResponseWriter, r *http.Request, rt *route) {
	ctx := r.Context()

	p, err := rt.build(ctx)
	if err != nil {
		code := provider.CodeOf(err)
		reg.metrics.IncProviderErrors(code.String())
		reg.logger.Error(ctx, err, "provider build failed",
			"path", rt.path,
			"code", code.String(),
		)
		reg.serveError(w, code)
		return
	}

	s, err := session.New(p, session.Options{
		ChunkBytes: rt.chunkBytes,
		Timeout:    reg.opts.SessionTimeout,
		Logger:     reg.logger,
	})
	if err != nil {
		p.Close()
		code := provider.CodeOf(err)
		reg.metrics.IncProviderErrors(code.String())
		reg.logger.Error(ctx, err, "session setup failed",
			"path", rt.path,
			"code", code.String(),
		)
		reg.serveError(w, code)
		return
	}
	defer s.Close()

	w.Header().Set("Content-Type", s.ContentType())
	w.Header().Set("Content-Length", strconv.FormatInt(s.Size(), 10))
	w.Header().Set("Accept-Ranges", "none")
	if enc := responseEncoding(rt, p); enc != "" {
		w.Header().Set("Content-Encoding", enc)
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	reg.metrics.IncActiveSessions()
	defer reg.metrics.DecActiveSessions()

	written, err := s.WriteTo(ctx, w)

	outcome := "completed"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
		reg.logger.Debug(ctx, "stream canceled",
			"path", rt.path,
			"bytes", written,
			"total", s.Size(),
		)
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
		reg.logger.Warn(ctx, "stream deadline exceeded",
			"path", rt.path,
			"bytes", written,
			"total", s.Size(),
			"elapsed_ms", s.Elapsed().Milliseconds(),
		)
	case errors.Is(err, provider.ErrTransport):
		// client went away mid-stream; common enough to keep quiet
		outcome = "transport_error"
		reg.logger.Debug(ctx, "stream write failed",
			"path", rt.path,
			"bytes", written,
			"total", s.Size(),
		)
	default:
		outcome = "error"
		reg.metrics.IncProviderErrors(provider.CodeOf(err).String())
		reg.logger.Error(ctx, err, "stream failed",
			"path", rt.path,
			"bytes", written,
			"total", s.Size(),
		)
	}

	reg.metrics.IncSessionsTotal(outcome)
	reg.metrics.ObserveSessionDuration(s.Elapsed().Seconds())
	reg.metrics.ObserveSessionBytes(float64(written))
}

// responseEncoding prefers the encoding captured at registration and
// falls back to asking the provider, which covers HandleProviderFunc
// builders that return pre-encoded content.
func responseEncoding(rt *route, p provider.Provider) string {
	if rt.encoding != "" {
		return rt.encoding
	}
	return providerEncoding(p)
}

// httpStatus maps build-phase failures to a response status. Mid-stream
// failures never reach here; the status is already on the wire by then.
func httpStatus(code provider.Code) int {
	switch code {
	case provider.CodeNotFound:
		return http.StatusNotFound
	case provider.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (reg *Registry) serveError(w http.ResponseWriter, code provider.Code) {
	status := httpStatus(code)
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(status), status)
}

func (reg *Registry) serveNotFound(w http.ResponseWriter) {
	// avoid caching 404 responses
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, "404 page not found", http.StatusNotFound)
}

func (reg *Registry) serveUnavailable(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "60")
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
}
