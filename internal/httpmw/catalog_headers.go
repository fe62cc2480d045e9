package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CatalogInfo provides catalog version information for headers
type CatalogInfo interface {
	CatalogVersion() string
	CatalogHash() string
}

// CatalogHeaders middleware adds X-Catalog-Version and X-Catalog-Hash headers
// to all responses when catalog information is available
func CatalogHeaders(info CatalogInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				v := info.CatalogVersion()
				h := info.CatalogHash()
				if v != "" {
					w.Header().Set("X-Catalog-Version", v)
				}
				if h != "" {
					// 12 hex chars is plenty to correlate a response
					// with a catalog; the span gets the full hash
					headerHash := h
					if len(headerHash) > 12 {
						headerHash = headerHash[:12]
					}
					w.Header().Set("X-Catalog-Hash", headerHash)
				}
				// Enrich the current trace span with catalog version info
				if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
					if v != "" {
						span.SetAttributes(attribute.String("catalog.version", v))
					}
					if h != "" {
						span.SetAttributes(attribute.String("catalog.hash", h))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
