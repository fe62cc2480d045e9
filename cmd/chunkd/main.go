package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/chunkd/internal/catalog"
	"github.com/keithlinneman/chunkd/internal/cataloghttp"
	"github.com/keithlinneman/chunkd/internal/cfg"
	"github.com/keithlinneman/chunkd/internal/opshttp"
	"github.com/keithlinneman/chunkd/internal/probe"
	"github.com/keithlinneman/chunkd/internal/ratelimit"
	"github.com/keithlinneman/chunkd/internal/seedassets"
	"github.com/keithlinneman/chunkd/internal/source"
	"github.com/keithlinneman/chunkd/internal/streamhttp"

	"github.com/keithlinneman/chunkd/internal/httpserver"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/metrics"
	"github.com/keithlinneman/chunkd/internal/otelx"
	"github.com/keithlinneman/chunkd/internal/prof"
	v "github.com/keithlinneman/chunkd/internal/version"
)

const appName = "chunkd"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Flag values land first; FillFromEnv below only touches flags the
	// CLI left alone.
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// CHUNKD_HTTP_PORT and friends fill whatever the CLI did not set.
	cfg.FillFromEnv(flag.CommandLine, "CHUNKD_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		if stLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
			os.Exit(1)
		}
	}
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           v.Version,
		Commit:            v.Commit,
		BuildId:           v.BuildId,
		Level:             lvl,
		StacktraceLevel:   stLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// Sync is a no-op on the slog backend; a buffered backend needs the flush.
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_catalog_updates", conf.EnableCatalogUpdates,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"include_error_links", conf.IncludeErrorLinks,
		"max_error_links", conf.MaxErrorLinks,
		"chunk_bytes", conf.ChunkBytes,
		"session_timeout", conf.SessionTimeout,
		"drain_timeout", conf.DrainTimeout,
		"content_root", conf.ContentRoot,
		"catalog_path", conf.CatalogPath,
		"catalog_ssm_param", conf.CatalogSSMParam,
		"catalog_s3_bucket", conf.CatalogS3Bucket,
		"catalog_s3_prefix", conf.CatalogS3Prefix,
	)

	// Setup pyroscope profiling. Session pacing and catalog swaps both
	// contend on locks, so sample mutex and block events too.
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
		MutexFraction: 5,
		BlockRate:     5,
	})
	profActive := conf.EnablePyroscope && err == nil
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Traces go out as plaintext OTLP; the collector is a same-host sidecar.
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Metrics registry. Build identity and profiler state are gauges.
	var m *metrics.ServerMetrics = metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", vi)
	m.SetProfilingActive(profActive)

	// One AWS config serves both the catalog loader and s3:// entry sources.
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		os.Exit(1)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	ssmClient := ssm.NewFromConfig(awsCfg)

	// setup catalog manager that tracks the active snapshot
	catalogMgr := catalog.NewManager()

	// load the embedded seed catalog so there is always something to serve
	seedSnap, err := catalog.Seed(seedassets.CatalogYAML())
	if err != nil {
		// the seed is compiled in, a parse failure is a build defect
		L.Error(ctx, err, "embedded seed catalog is invalid")
		os.Exit(1)
	}
	catalogMgr.Set(*seedSnap)
	L.Info(ctx, "loaded embedded seed catalog", "catalog_entries", catalogMgr.Entries())

	// setup catalog loader when a source is configured
	var loader *catalog.Loader
	if conf.CatalogPath != "" || conf.CatalogS3Bucket != "" {
		loader, err = catalog.NewLoader(ctx, catalog.LoaderOptions{
			Logger:    L,
			Path:      conf.CatalogPath,
			SSMParam:  conf.CatalogSSMParam,
			S3Bucket:  conf.CatalogS3Bucket,
			S3Prefix:  conf.CatalogS3Prefix,
			S3Client:  s3Client,
			SSMClient: ssmClient,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create catalog loader, catalog updates will be disabled")
		}
	}

	// load the configured catalog, keeping the seed on failure
	if loader != nil {
		snap, err := loader.Load(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load catalog, falling back to seed")
		} else {
			catalogMgr.Set(*snap)
			L.Info(ctx, "loaded catalog",
				"catalog_version", catalogMgr.CatalogVersion(),
				"catalog_hash", catalogMgr.CatalogHash(),
				"catalog_entries", catalogMgr.Entries(),
			)
		}
	}
	m.SetCatalogSource(string(catalogMgr.Source()))
	m.SetCatalog(catalogMgr.CatalogVersion(), catalogMgr.CatalogHash())
	m.SetCatalogEntries(catalogMgr.Entries())
	if t := catalogMgr.LoadedAt(); !t.IsZero() {
		m.SetCatalogLoadedTimestamp(t)
	}

	if loader != nil && conf.EnableCatalogUpdates {
		// setup catalog watcher to poll for new catalogs, validate and swap into manager
		watcher := catalog.NewWatcher(catalog.WatcherOptions{
			Logger:       L,
			Loader:       loader,
			Manager:      catalogMgr,
			PollInterval: 30 * time.Second,
			Metrics:      m,
			OnSwap: func(hash, version string) {
				m.SetCatalog(version, hash)
				m.SetCatalogSource(string(catalogMgr.Source()))
				m.SetCatalogEntries(catalogMgr.Entries())
				m.SetCatalogLoadedTimestamp(time.Now())
			},
		})
		// Exits when the signal context is cancelled.
		go watcher.Run(ctx)
	}

	// setup the registry that streams catalog entries in bounded chunks
	reg, err := streamhttp.New(streamhttp.Options{
		Logger:  L,
		Catalog: catalogMgr,
		Source: source.Deps{
			S3:       s3Client,
			FileRoot: conf.ContentRoot,
		},
		DefaultChunkBytes: conf.ChunkBytes,
		SessionTimeout:    conf.SessionTimeout,
		Metrics:           m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create stream registry")
		os.Exit(1)
	}
	streamRoutes := streamhttp.NewRoutes(reg)

	// setup catalog status API
	catalogAPI := cataloghttp.NewAPI(catalogMgr, L)

	// Drain gate. Readiness fails once it is set.
	var gate probe.ShutdownGate

	// Readiness requires an open gate and an active catalog snapshot.
	readiness := probe.Multi(
		gate.Probe(),
		probe.Func(func(ctx context.Context) error {
			return catalogMgr.ReadyErr()
		}),
	)

	// Setup rate limiter middleware for the delivery listener. Every
	// denial counts; only a client's first denial logs.
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSec, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limiter at capacity, rejecting new clients until eviction frees space")
		}),
	)

	// start delivery http server
	streamHTTPStop, err := httpserver.Start(
		ctx,
		httpserver.Options{
			Port:         conf.HTTPPort,
			Health:       probe.Static(true, ""),
			Readiness:    readiness,
			APIRoutes:    catalogAPI.RegisterRoutes,
			StreamRoutes: streamRoutes.RegisterRoutes,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			MetricsMW:    m.Middleware,
			RateLimitMW:  limiter.Middleware,
			Logger:       L,
			CatalogInfo:  catalogMgr, // stamps X-Catalog-Version/Hash
		},
	)

	if err != nil {
		L.Error(ctx, err, "failed to start delivery http listener")
		os.Exit(1)
	}
	defer func() { _ = streamHTTPStop(context.Background()) }()

	// Ops listener: metrics, probes, pprof. Deployments keep it off the
	// public side, and its address guard drops non-private peers in case
	// a balancer ever points here anyway.
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       probe.Static(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// Type=notify readiness ping. Harmless off systemd.
	if err := notifySystemd(); err != nil {
		// Not fatal; systemd falls back to its own startup timeout.
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// Park here until SIGINT or SIGTERM.
	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// Readiness fails from here on; the balancer has to observe that
	// before the listeners go away, hence the drain window below.
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	if conf.DrainTimeout > 0 {
		// A second signal cuts the drain short.
		L.Info(context.Background(), "draining before listener shutdown", "drain_timeout", conf.DrainTimeout)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.DrainTimeout):
			L.Info(context.Background(), "drain period complete")
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := streamHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "delivery http listener shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http listener shutdown")
	}

	// close registered providers now that no sessions are in flight
	if err := reg.Close(); err != nil {
		L.Error(context.Background(), err, "stream registry close")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// Under Type=notify, systemd hands us a unixgram socket in NOTIFY_SOCKET.
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
