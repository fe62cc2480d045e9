package opshttp

import (
	"net/http"

	"github.com/keithlinneman/chunkd/internal/probe"
)

// Options configures the ops listener. The zero value binds the default
// port and serves probes that always pass.
type Options struct {
	// Port to bind on all interfaces. Zero means 9000.
	Port int

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// EnablePprof exposes the runtime profiles under /debug/pprof/.
	EnablePprof bool

	// Health backs /healthz and Readiness backs /readyz. A nil probe
	// always passes.
	Health    probe.Probe
	Readiness probe.Probe

	// UseRecoverMW turns handler panics into 500s instead of killing
	// the connection. OnPanic, when set, runs once per recovered panic,
	// typically to bump a counter.
	UseRecoverMW bool
	OnPanic      func()
}
