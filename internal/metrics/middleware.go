package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

type meterWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *meterWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *meterWriter) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// Middleware measures inflight, totals, duration, and response size
// under low-cardinality labels (method, route pattern, status).
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Seed an empty chi route context when none exists yet. The
		// router downstream fills the seeded object in place, which is
		// what lets a middleware mounted outside the router read the
		// resolved pattern after ServeHTTP returns.
		if chi.RouteContext(r.Context()) == nil {
			rctx := chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		mw := &meterWriter{ResponseWriter: w}
		next.ServeHTTP(mw, r)

		code := mw.code
		if code == 0 {
			code = http.StatusOK
		}

		ctx := r.Context()
		method := r.Method
		route := resolvedRoute(ctx)

		m.reqTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		if code >= 500 {
			m.errorsTotal.WithLabelValues(method, route).Inc()
		}

		observeWithExemplar(ctx, m.reqDur.WithLabelValues(method, route), time.Since(start).Seconds())
		m.respBytes.WithLabelValues(method, route).Observe(float64(mw.bytes))
	})
}

// resolvedRoute returns the chi pattern for the request. Requests that
// never matched a pattern collapse into one label value, because raw
// client-supplied paths would blow up metric cardinality.
func resolvedRoute(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" && p != "unmatched" {
			return p
		}
	}
	return "unmatched"
}

// observeWithExemplar records the observation, attaching the sampled
// trace ID as an exemplar when the histogram supports it.
func observeWithExemplar(ctx context.Context, o prometheus.Observer, v float64) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() && sc.IsSampled() {
		if eo, ok := o.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(v, prometheus.Labels{"trace_id": sc.TraceID().String()})
			return
		}
	}
	o.Observe(v)
}
