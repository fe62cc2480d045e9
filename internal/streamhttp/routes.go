package streamhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/chunkd/internal/httpmw"
)

type Routes struct {
	Stream http.Handler
}

func NewRoutes(stream http.Handler) *Routes {
	return &Routes{Stream: stream}
}

// RegisterRoutes must run after every other registrar; delivery is the
// catch-all behind them.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	// NotFound instead of a wildcard pattern keeps the probe and API
	// routes owned by their own registrars.
	h := httpmw.Scope("delivery")(markDeliveryRoute(rt.Stream))
	r.NotFound(h.ServeHTTP)
	r.MethodNotAllowed(h.ServeHTTP)
}

// markDeliveryRoute stamps a synthetic route pattern on fallback
// deliveries. The fallback never matches a chi pattern, and letting
// device-supplied paths become the route label would hand metric
// cardinality to whoever sends requests.
func markDeliveryRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rctx.RoutePatterns = []string{"/{delivery_path}"}
		}
		next.ServeHTTP(w, r)
	})
}
