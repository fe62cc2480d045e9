package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/chunkd/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// streaming session metrics
	activeSessions  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	sessionBytes    prometheus.Histogram
	providerErrors  *prometheus.CounterVec

	// catalog metrics
	catalogSource   *prometheus.GaugeVec
	catalogLoadedTs prometheus.Gauge
	catalogInfo     *prometheus.GaugeVec
	catalogEntries  prometheus.Gauge

	// watcher metrics
	watcherPollsTotal    prometheus.Counter
	watcherSwapsTotal    prometheus.Counter
	watcherErrorsTotal   *prometheus.CounterVec
	catalogLoadDuration  prometheus.Histogram
	watcherLastSuccessTs prometheus.Gauge
	watcherStale         prometheus.Gauge
}

// New builds a private registry with the Go and process collectors plus
// every chunkd metric family. Labels stay bounded: method, route pattern,
// status. Raw request paths never become label values.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_active_sessions",
			Help: "Streaming sessions currently delivering content",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_sessions_total",
			Help: "Finished streaming sessions by outcome",
		}, []string{"outcome"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stream_session_duration_seconds",
			Help:    "Wall time from session start to final chunk",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		sessionBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stream_session_bytes",
			Help:    "Bytes delivered per streaming session",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Provider build and read failures by classification code",
		}, []string{"code"}),
		catalogSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_source_info",
			Help: "Current catalog source (label carries value, gauge is always 1)",
		}, []string{"source"}),
		catalogLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current catalog was loaded",
		}),
		catalogInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_info",
			Help: "Currently active catalog (labels carry identity, value is always 1)",
		}, []string{"version", "sha256"}),
		catalogEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_entries",
			Help: "Number of entries in the active catalog",
		}),
		watcherPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_watcher_polls_total",
			Help: "Total number of watcher poll cycles",
		}),
		watcherSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_watcher_swaps_total",
			Help: "Total number of successful catalog swaps",
		}),
		watcherErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_watcher_errors_total",
			Help: "Total watcher errors by type",
		}, []string{"type"}),
		catalogLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_load_duration_seconds",
			Help:    "Time to download, verify, and parse a catalog",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		watcherLastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful hash poll",
		}),
		watcherStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_watcher_stale",
			Help: "Whether the catalog watcher is stale (1) or healthy (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.activeSessions,
		m.sessionsTotal,
		m.sessionDuration,
		m.sessionBytes,
		m.providerErrors,
		m.catalogSource,
		m.catalogLoadedTs,
		m.catalogInfo,
		m.catalogEntries,
		m.watcherPollsTotal,
		m.watcherSwapsTotal,
		m.watcherErrorsTotal,
		m.catalogLoadDuration,
		m.watcherLastSuccessTs,
		m.watcherStale,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// streaming sessions

func (m *ServerMetrics) IncActiveSessions() {
	m.activeSessions.Inc()
}

func (m *ServerMetrics) DecActiveSessions() {
	m.activeSessions.Dec()
}

func (m *ServerMetrics) IncSessionsTotal(outcome string) {
	m.sessionsTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) ObserveSessionDuration(seconds float64) {
	m.sessionDuration.Observe(seconds)
}

func (m *ServerMetrics) ObserveSessionBytes(bytes float64) {
	m.sessionBytes.Observe(bytes)
}

func (m *ServerMetrics) IncProviderErrors(code string) {
	m.providerErrors.WithLabelValues(code).Inc()
}

// catalog identity

func (m *ServerMetrics) SetCatalogSource(source string) {
	m.catalogSource.Reset() // clear previous label value
	m.catalogSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetCatalogLoadedTimestamp(t time.Time) {
	m.catalogLoadedTs.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetCatalog(version, sha256 string) {
	m.catalogInfo.Reset()
	m.catalogInfo.WithLabelValues(version, sha256).Set(1)
}

func (m *ServerMetrics) SetCatalogEntries(n int) {
	m.catalogEntries.Set(float64(n))
}

// watcher

func (m *ServerMetrics) IncWatcherPolls() {
	m.watcherPollsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherSwaps() {
	m.watcherSwapsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherError(errType string) {
	m.watcherErrorsTotal.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) ObserveCatalogLoadDuration(seconds float64) {
	m.catalogLoadDuration.Observe(seconds)
}

func (m *ServerMetrics) SetWatcherLastSuccess(unixSeconds float64) {
	m.watcherLastSuccessTs.Set(unixSeconds)
}

func (m *ServerMetrics) SetWatcherStale(stale bool) {
	if stale {
		m.watcherStale.Set(1)
	} else {
		m.watcherStale.Set(0)
	}
}
