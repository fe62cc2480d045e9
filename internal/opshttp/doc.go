// Package opshttp runs the operational listener: Prometheus metrics,
// health and readiness probes, and optional pprof. It binds a port of
// its own so the delivery listener can face devices while this one
// stays on the internal network, and every route sits behind a peer
// address guard that refuses public clients.
package opshttp
