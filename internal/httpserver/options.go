package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/chunkd/internal/httpmw"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/probe"
)

// Options configures the delivery listener and its middleware stack.
type Options struct {
	Logger log.Logger

	// Port to bind on all interfaces. Zero means 8080.
	Port int

	// UseRecoverMW turns handler panics into 500s. OnPanic, when set,
	// runs once per recovered panic.
	UseRecoverMW bool
	OnPanic      func()

	// MetricsMW and RateLimitMW slot into the stack when non-nil. They
	// are injected rather than constructed here so the caller owns the
	// registry and the limiter lifecycle.
	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	// ClientIPOpts controls how many proxy hops to trust when resolving
	// the client address the limiter and access log key on.
	ClientIPOpts httpmw.ClientIPOptions

	// Health and Readiness mount at /-/healthy and /-/ready when set.
	Health    probe.Probe
	Readiness probe.Probe

	// CatalogInfo stamps X-Catalog-Version and X-Catalog-Hash on every
	// response so fleets can tell which catalog served them.
	CatalogInfo httpmw.CatalogInfo

	// APIRoutes registers the control API. StreamRoutes registers the
	// delivery routes and runs last; its NotFound fallback claims every
	// path the routes above did not.
	APIRoutes    func(chi.Router)
	StreamRoutes func(chi.Router)
}
