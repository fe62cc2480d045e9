package opshttp

import (
	"net"
	"net/http"

	"github.com/keithlinneman/chunkd/internal/log"
)

// requireNonPublicNetwork rejects requests from peers outside loopback,
// RFC 1918, and link-local ranges. Anything we cannot parse is rejected too.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			L.Warn(r.Context(), "ops request rejected, unparseable remote addr", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		// net.IP methods check the embedded IPv4 address for IPv4-mapped
		// IPv6 forms like ::ffff:10.0.0.1, so no explicit unmap needed
		ip := net.ParseIP(host)
		if ip == nil || !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			L.Warn(r.Context(), "ops request rejected, non-internal remote addr", "remote_addr", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
