package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures how the client address is resolved.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the
	// listener. 0 means directly exposed and X-Forwarded-For is
	// ignored outright. 1 trusts the rightmost entry (single load
	// balancer), 2 the one left of it, and so on.
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions resolves the client address per opts and stores
// it in the request context for the rate limiter and the access log.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// resolveClientIP returns the best available client address. Forwarded
// headers are only consulted when the TCP peer is a private address,
// meaning the connection came through our own load balancer rather than
// straight off the internet. Devices carry no signed identity headers,
// so the peer network is the only trust signal there is. Anything else
// gets the forwarded headers stripped so nothing downstream trusts them
// by accident.
func resolveClientIP(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return "0.0.0.0"
	}

	if !peer.IsPrivate() || trustedHops <= 0 {
		dropForwardHeaders(r)
		return host
	}

	// Pick the entry trustedHops from the right: 1 is what the load
	// balancer appended, 2 what a CDN in front of it appended. Fewer
	// entries than proxies means the header was forged or the chain is
	// misconfigured, and then we fail closed on the TCP peer.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		i := len(hops) - trustedHops
		if i < 0 {
			dropForwardHeaders(r)
			return host
		}
		if c := strings.TrimSpace(hops[i]); net.ParseIP(c) != nil {
			return c
		}
	}
	return host
}

// dropForwardHeaders removes proxy headers we decided not to trust.
func dropForwardHeaders(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// WithClientIP stores a resolved client address in ctx. Empty values
// are not stored.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the resolved client address in ctx, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
