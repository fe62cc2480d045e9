package httpmw

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/chunkd/internal/log"
)

// writeTracker wraps the ResponseWriter to record status, bytes, and
// how long the handler sat blocked in Write. A chunk delivery to a slow
// device spends most of its wall time there, so the numbers go onto a
// child span as well as the access log.
type writeTracker struct {
	http.ResponseWriter

	status int
	bytes  int64

	ctx   context.Context
	start time.Time

	span     trace.Span
	spanOpen bool
	ttfb     time.Duration
	blocked  time.Duration
	firstErr error
}

// openSpan starts the response.write child span on the first write.
func (wt *writeTracker) openSpan() {
	if wt.spanOpen {
		return
	}
	wt.spanOpen = true
	wt.ttfb = time.Since(wt.start)

	parent := trace.SpanFromContext(wt.ctx)
	if parent == nil || !parent.IsRecording() {
		return
	}
	wt.ctx, wt.span = otel.Tracer("chunkd/httpmw").Start(wt.ctx, "response.write",
		trace.WithAttributes(
			attribute.Float64("http.server.ttfb_seconds", wt.ttfb.Seconds()),
		),
	)
}

func (wt *writeTracker) closeSpan() {
	if wt.span == nil {
		return
	}
	wt.span.SetAttributes(
		attribute.Int("http.response.status_code", wt.statusOr200()),
		attribute.Int64("http.response.body.size", wt.bytes),
		attribute.Float64("http.server.write.block_seconds", wt.blocked.Seconds()),
	)
	if wt.firstErr != nil {
		wt.span.RecordError(wt.firstErr)
		wt.span.SetStatus(codes.Error, wt.firstErr.Error())
	}
	wt.span.End()
}

func (wt *writeTracker) statusOr200() int {
	if wt.status == 0 {
		return http.StatusOK
	}
	return wt.status
}

func (wt *writeTracker) WriteHeader(code int) {
	wt.openSpan()
	wt.status = code
	t := time.Now()
	wt.ResponseWriter.WriteHeader(code)
	wt.blocked += time.Since(t)
}

func (wt *writeTracker) Write(p []byte) (int, error) {
	wt.openSpan()
	if wt.status == 0 {
		wt.status = http.StatusOK
	}
	t := time.Now()
	n, err := wt.ResponseWriter.Write(p)
	wt.blocked += time.Since(t)
	wt.bytes += int64(n)
	if err != nil && wt.firstErr == nil {
		wt.firstErr = err
	}
	return n, err
}

// Flush passes through so paced chunk delivery keeps working.
func (wt *writeTracker) Flush() {
	if f, ok := wt.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (wt *writeTracker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := wt.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// WithLogger derives a request-scoped logger carrying the request
// identity fields and stores it in the context. It runs inside the
// client IP middleware, so the resolved address is used as is, and the
// same attributes are mirrored onto the active span. The query string
// goes to the span only, never the log.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reqID := RequestIDFromContext(ctx)

			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			client := ClientIPFromContext(ctx)
			if client == "" {
				client = peer
			}

			scheme := requestScheme(r)

			if span := trace.SpanFromContext(ctx); span != nil {
				if sc := span.SpanContext(); sc.IsValid() {
					span.SetAttributes(
						attribute.String("request_id", reqID),
						attribute.String("server.address", r.Host),
						attribute.String("client.address", client),
						attribute.String("network.peer.address", peer),
						attribute.String("url.scheme", scheme),
					)
					if q := r.URL.RawQuery; q != "" {
						span.SetAttributes(attribute.String("url.query", q))
					}
				}
			}

			l := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, l)))
		})
	}
}

// AccessLog emits one line per request after the handler returns, using
// the request-scoped logger WithLogger installed. Health probes are
// skipped so the log stays about deliveries.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var reqBytes int64
			if r.ContentLength > 0 {
				reqBytes = r.ContentLength
			}

			wt := &writeTracker{ResponseWriter: w, ctx: r.Context(), start: start}
			next.ServeHTTP(wt, r)

			// The write span covers time blocked on the client socket.
			wt.closeSpan()

			if r.URL.Path == "/-/ready" || r.URL.Path == "/-/healthy" {
				return
			}

			// Re-read the context in case inner middleware enriched it.
			ctx := r.Context()

			route := ""
			if rc := chi.RouteContext(ctx); rc != nil {
				route = rc.RoutePattern()
			}
			if route == "" {
				route = r.URL.Path
			}

			log.FromContext(ctx).Info(ctx, "http request",
				"http.response.status_code", wt.statusOr200(),
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", wt.bytes,
				"http.request.body.size", reqBytes,
				"http.route", route,
			)
		})
	}
}

// requestScheme reports the scheme the client used. X-Forwarded-Proto
// survives only when the client IP middleware judged the proxy chain
// trustworthy, so by this point it can be taken at face value.
func requestScheme(r *http.Request) string {
	if fp := r.Header.Get("X-Forwarded-Proto"); fp != "" {
		scheme, _, _ := strings.Cut(fp, ",")
		return strings.TrimSpace(scheme)
	}
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Scope tags the request logger and span with a handler group name, so
// a delivery line is distinguishable from a catalog API line without
// parsing paths.
func Scope(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("handler", handler))

			if span := trace.SpanFromContext(ctx); span != nil && span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
