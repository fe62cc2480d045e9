// Package probe models health checks as composable values and serves
// them over the usual healthz and readyz endpoints.
//
// Probes can be combined with [Multi] (AND), [Any] (OR), and [Static].
// [Func] adapts a plain function into a [Probe].
//
// [ShutdownGate] coordinates graceful shutdown: once set, its probe fails
// with the draining reason so load balancers stop sending traffic before
// in-flight requests are drained.
package probe
