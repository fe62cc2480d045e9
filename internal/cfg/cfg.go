// Package cfg declares the daemon's configuration surface: flag
// registration, environment fallback, and validation. Precedence is
// cli flag > env var > default.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/provider"
)

type App struct {
	LogJSON              bool
	LogLevel             string
	HTTPPort             int
	AdminPort            int
	EnablePprof          bool
	EnablePyroscope      bool
	EnableTracing        bool
	EnableCatalogUpdates bool
	PyroServer           string
	PyroTenantID         string
	OTLPEndpoint         string
	TraceSample          float64
	StacktraceLevel      string
	IncludeErrorLinks    bool
	MaxErrorLinks        int
	ChunkBytes           int
	SessionTimeout       time.Duration
	DrainTimeout         time.Duration
	RateLimitPerSec      float64
	RateLimitBurst       int
	ContentRoot          string
	CatalogPath          string
	CatalogSSMParam      string
	CatalogS3Bucket      string
	CatalogS3Prefix      string
}

// Register binds every config field to fs with its default inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "delivery listen port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen port for metrics/probes/pprof (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the admin port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "push OTLP traces to -otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to -pyro-server")
	fs.BoolVar(&c.EnableCatalogUpdates, "enable-catalog-updates", true, "poll the catalog source for changes")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint to push to (host:port)")
	fs.IntVar(&c.ChunkBytes, "chunk-bytes", provider.DefaultChunkSize, "default streaming chunk size in bytes (512..8192, 0 = built-in default)")
	fs.DurationVar(&c.SessionTimeout, "session-timeout", 30*time.Second, "per-session streaming deadline, checked at chunk boundaries (0 disables)")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", 60*time.Second, "shutdown drain window before listeners close (0 skips the drain)")
	fs.Float64Var(&c.RateLimitPerSec, "rate-limit-rps", 10, "per-IP sustained request rate in requests/sec")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 30, "per-IP burst ceiling")
	fs.StringVar(&c.ContentRoot, "content-root", "", "directory file: content sources are confined to (empty = no confinement)")
	fs.StringVar(&c.CatalogPath, "catalog-path", "", "local catalog file to serve and watch (mutually exclusive with -catalog-s3-bucket)")
	fs.StringVar(&c.CatalogSSMParam, "catalog-ssm-param", "", "ssm parameter name holding the current catalog object hash")
	fs.StringVar(&c.CatalogS3Bucket, "catalog-s3-bucket", "", "s3 bucket name to get catalog objects from")
	fs.StringVar(&c.CatalogS3Prefix, "catalog-s3-prefix", "", "s3 prefix (key) to get catalog objects from")
}

// envKey maps flag name "foo-bar" to PREFIX_FOO_BAR.
func envKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// FillFromEnv sets every flag not passed on the CLI from its matching
// environment variable. Values that fail to parse are logged and the
// flag keeps its previous value.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	fromCLI := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { fromCLI[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := envKey(prefix, f.Name)
		val, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if fromCLI[f.Name] {
			if logf != nil {
				logf("flag -%s: keeping cli value %q over env %s=%q", f.Name, f.Value.String(), key, val)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, val); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring unparseable env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

// Validate checks ranges and cross-field constraints, reporting every
// violation at once rather than the first.
func Validate(c App) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		fail("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		fail("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		fail("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		fail("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			fail("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		fail("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	// Tracing
	if c.TraceSample < 0 || c.TraceSample > 1 {
		fail("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnableTracing {
		// The gRPC exporter wants bare host:port, no scheme.
		if c.OTLPEndpoint == "" {
			fail("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			fail("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}

	// Profiling
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			fail("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			fail("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			fail("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}

	// Streaming
	if _, err := provider.NormalizeChunkSize(c.ChunkBytes, 0); err != nil {
		fail("invalid CHUNK_BYTES %d: %v", c.ChunkBytes, err)
	}
	if c.SessionTimeout < 0 {
		fail("SESSION_TIMEOUT must not be negative (got %v)", c.SessionTimeout)
	}
	if c.DrainTimeout < 0 {
		fail("DRAIN_TIMEOUT must not be negative (got %v)", c.DrainTimeout)
	}

	// Rate limiting
	if c.RateLimitPerSec <= 0 {
		fail("RATE_LIMIT_RPS must be > 0 (got %g)", c.RateLimitPerSec)
	}
	if c.RateLimitBurst < 1 {
		fail("RATE_LIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst)
	}

	// Catalog source: a local path or the S3/SSM triple, never both.
	// Neither configured is fine, the daemon serves its embedded seed catalog.
	if c.CatalogPath != "" && (c.CatalogS3Bucket != "" || c.CatalogS3Prefix != "" || c.CatalogSSMParam != "") {
		fail("CATALOG_PATH and CATALOG_S3_BUCKET/CATALOG_S3_PREFIX/CATALOG_SSM_PARAM are mutually exclusive")
	}
	remoteSet := 0
	for _, v := range []string{c.CatalogS3Bucket, c.CatalogS3Prefix, c.CatalogSSMParam} {
		if v != "" {
			remoteSet++
		}
	}
	if remoteSet > 0 && remoteSet < 3 {
		fail("CATALOG_S3_BUCKET, CATALOG_S3_PREFIX, and CATALOG_SSM_PARAM must be set together")
	}

	return errors.Join(errs...)
}
