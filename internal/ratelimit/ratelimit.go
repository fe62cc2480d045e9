package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/chunkd/internal/httpmw"
)

// bucket is one client's token bucket and housekeeping state.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
	// denialLogged keeps the first-denial hook to one shot per tracked
	// client. Eviction and re-creation arm it again.
	denialLogged bool
}

// IPLimiter enforces a per-client token bucket keyed by resolved
// client IP, with background eviction of idle entries.
type IPLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket

	perSecond rate.Limit
	burst     int

	// ttl is how long an idle client keeps its bucket before eviction.
	ttl time.Duration

	// maxClients caps the tracked map. Clients arriving at a full map
	// are rejected outright; tracked clients keep their budget. Zero
	// means no cap.
	maxClients    int
	capacityFired bool

	// OnFirstDenied fires once per tracked client at their first
	// denial, OnDenied on every denial, OnCapacity once per full-map
	// episode. All receive the bare IP, no port.
	OnFirstDenied func(ip string)
	OnDenied      func(ip string)
	OnCapacity    func()
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket capacity. WithRate(10, 50)
// admits a burst of 50, then refills 10 tokens a second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL sets how long an idle client stays tracked.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) {
		l.ttl = d
	}
}

// WithOnFirstDenied sets the once-per-client denial hook. Separate
// from OnDenied so a misbehaving device produces one log line while
// every denial still counts.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) {
		l.OnFirstDenied = fn
	}
}

// WithOnDenied sets the every-denial hook.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) {
		l.OnDenied = fn
	}
}

// WithMaxClients caps how many distinct IPs the limiter tracks at
// once. Zero disables the cap.
func WithMaxClients(n int) Option {
	return func(l *IPLimiter) {
		l.maxClients = n
	}
}

// WithOnCapacity sets a hook fired once each time the tracked map
// fills. It arms again after eviction frees space.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) {
		l.OnCapacity = fn
	}
}

// New builds an IPLimiter and starts its eviction loop. The loop stops
// when ctx is canceled.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		clients:    make(map[string]*bucket),
		perSecond:  10,
		burst:      30,
		ttl:        5 * time.Minute,
		maxClients: 100000,
	}
	for _, o := range opts {
		o(l)
	}
	if l.ttl <= 0 {
		l.ttl = 5 * time.Minute
	}
	go l.evictLoop(ctx)
	return l
}

// decision is the locked part of a limit check; hooks fire after the
// lock is released so slow callbacks never stall other requests.
type decision struct {
	allowed     bool
	firstDenial bool
	capacityHit bool
}

func (l *IPLimiter) decide(ip string) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[ip]
	if !ok {
		if l.maxClients > 0 && len(l.clients) >= l.maxClients {
			first := !l.capacityFired
			l.capacityFired = true
			return decision{capacityHit: first}
		}
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = time.Now()

	if b.lim.Allow() {
		return decision{allowed: true}
	}
	first := !b.denialLogged
	b.denialLogged = true
	return decision{firstDenial: first}
}

// allow reports whether the request may proceed and drives the hooks.
func (l *IPLimiter) allow(ip string) bool {
	d := l.decide(ip)
	if d.capacityHit && l.OnCapacity != nil {
		l.OnCapacity()
	}
	if d.firstDenial && l.OnFirstDenied != nil {
		l.OnFirstDenied(ip)
	}
	if !d.allowed && l.OnDenied != nil {
		l.OnDenied(ip)
	}
	return d.allowed
}

// evictLoop drops clients idle past the TTL. Running at half the TTL
// keeps stale entries from outliving their window by much.
func (l *IPLimiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, b := range l.clients {
				if now.Sub(b.lastSeen) > l.ttl {
					delete(l.clients, ip)
				}
			}
			if l.maxClients == 0 || len(l.clients) < l.maxClients {
				l.capacityFired = false
			}
			l.mu.Unlock()
		}
	}
}

// Middleware rejects over-limit requests with 429. It keys on the
// client IP resolved upstream, so proxy hops and forwarded headers are
// already accounted for.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())

		if !l.allow(ip) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			// No remaining-budget or refill detail for abusers to tune
			// against.
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
