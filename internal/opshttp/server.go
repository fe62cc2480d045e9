package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keithlinneman/chunkd/internal/httpmw"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/probe"
	"github.com/keithlinneman/chunkd/internal/xerrors"
)

// Start binds the ops listener and serves it on a background goroutine.
// The returned stop func drains in-flight requests and is safe to call
// more than once; only the first call does the work.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	addr := listenAddr(opts.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not bind ops listener on %s", addr)
	}

	go func() {
		L.Info(ctx, "ops http listener started", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "ops http listener error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "stopping ops http listener")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}

// listenAddr maps the configured port to a bind address. Zero falls
// back to the conventional ops port.
func listenAddr(port int) string {
	if port == 0 {
		port = 9000
	}
	return fmt.Sprintf(":%d", port)
}

// handler assembles the ops mux and wraps it in the shared middleware.
// The network guard fronts every route, recovery included, so even a
// panicking probe never answers a public peer.
func handler(L log.Logger, opts *Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/healthz", probe.HealthzHandler(opts.Health))
	mux.Handle("/readyz", probe.ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	// pprof is opt-in; the prefix answers 404 otherwise.
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	return httpmw.Chain(mux,
		func(next http.Handler) http.Handler { return requireNonPublicNetwork(L, next) },
		recoverMW,
	)
}
