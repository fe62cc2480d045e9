package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/chunkd/internal/httpmw"
	"github.com/keithlinneman/chunkd/internal/probe"
	"github.com/keithlinneman/chunkd/internal/xerrors"
)

// NewHandler assembles the delivery middleware stack around the router.
// The caller owns the *http.Server so main can drive graceful shutdown.
//
// Order is outermost first. Security headers and recovery wrap
// everything, the client address resolves before the rate limiter keys
// on it, and requests the limiter refuses never open a span. The
// request logger sits innermost so its entries carry the ids the outer
// layers mint.
func NewHandler(opts Options) http.Handler {
	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}
	var catalogMW func(http.Handler) http.Handler
	if opts.CatalogInfo != nil {
		catalogMW = httpmw.CatalogHeaders(opts.CatalogInfo)
	}

	return httpmw.Chain(router(opts),
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		tracing(),
		catalogMW,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
	)
}

// router builds the routing tree. Stream routes register last because
// they claim the NotFound and MethodNotAllowed fallbacks; every path
// the explicit routes above leave unclaimed lands in the delivery
// resolver.
func router(opts Options) chi.Router {
	r := chi.NewRouter()

	// Compress catalog JSON and the text types entries commonly
	// declare. Binary chunk payloads stay uncompressed.
	r.Use(middleware.Compress(5,
		"application/json",
		"text/html",
		"text/css",
		"text/plain",
		"application/javascript",
		"text/javascript",
		"image/svg+xml",
	))

	// Rename the active span and logger to the chi route pattern once
	// routing has resolved it.
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog())

	// Delivery is GET/HEAD only; request bodies have no business here.
	r.Use(httpmw.MaxBody(1024))

	if opts.Health != nil {
		r.Get("/-/healthy", probe.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", probe.ReadyzHandler(opts.Readiness))
	}

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}
	if opts.StreamRoutes != nil {
		opts.StreamRoutes(r)
	}
	return r
}

// tracing opens a server span per request. Spans never continue a
// caller's trace; devices send arbitrary headers and a forged
// traceparent would stitch their request into someone else's trace.
func tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next,
			"http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return traceworthy(r.URL.Path)
			}),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				// Placeholder name; AnnotateHTTPRoute renames the span
				// to the route pattern after routing.
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		)
	}
}

// traceworthy filters span creation. Probes poll too often to trace
// and favicon or robots fetches are browser noise.
func traceworthy(p string) bool {
	switch p {
	case "/-/healthy", "/-/ready", "/favicon.ico", "/favicon.svg", "/robots.txt":
		return false
	}
	return true
}

// Server timeout defaults. The read side stays tight since the delivery
// API takes no bodies. WriteTimeout is left unset: a delivery to a slow
// client runs until its session deadline, not a fixed server cap.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// listenAddr maps the configured port to a bind address. Zero falls
// back to the default delivery port.
func listenAddr(port int) string {
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf(":%d", port)
}

// Start binds the delivery listener and serves it on a background
// goroutine. The returned stop func drains in-flight requests and is
// safe to call more than once.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	addr := listenAddr(opts.Port)
	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not bind delivery listener on %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "delivery http listener started", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "delivery http listener error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "stopping delivery http listener")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
