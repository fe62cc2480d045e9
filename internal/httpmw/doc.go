// Package httpmw holds the HTTP middleware for the delivery listener.
//
// httpserver.NewHandler composes these in a fixed order: security
// headers outermost, then panic recovery, request IDs, client IP
// extraction, rate limiting, tracing, catalog headers, metrics, and the
// request logger around the chi router. Each middleware stands alone,
// so the admin listener can reuse the few it needs.
//
// Values a client sends us (query strings, user agents, arbitrary
// headers) stay out of the logs to keep injected content and device
// identifiers out of them.
package httpmw
