// internal/catalog/watcher.go
//
// Watcher polls for catalog hash changes and hot-swaps the active catalog
// in the Manager when a new document is detected.
//
// Catalogs are small parsed documents, so there is nothing on disk to clean
// up. Old snapshots are garbage-collected when the atomic pointer in the
// Manager is swapped; sessions built from them keep their providers until
// they finish.
package catalog

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/keithlinneman/chunkd/internal/cryptoutil"
	"github.com/keithlinneman/chunkd/internal/log"
)

const (
	// DefaultPollInterval is how often the watcher checks for a new hash.
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive fetch errors.
	maxBackoff = 5 * time.Minute
)

// pollResult classifies one cycle of the poll loop.
type pollResult int

const (
	pollNoChange        pollResult = iota // hash matches current - nothing to do
	pollSwapped                           // new hash detected, catalog loaded and swapped
	pollFetchError                        // hash fetch failed - caller should back off
	pollLoadError                         // fetch succeeded but download/parse/swap failed
	pollValidationError                   // catalog loaded but failed the swap gate
)

// CatalogFetcher is the slice of the Loader the watcher calls. Tests
// substitute fakes.
type CatalogFetcher interface {
	FetchCurrentHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics receives the watcher's observability signals.
// *metrics.ServerMetrics satisfies it.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveCatalogLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

// WatcherOptions configures the catalog watcher.
type WatcherOptions struct {
	Logger       log.Logger
	Loader       CatalogFetcher
	Manager      *Manager
	PollInterval time.Duration

	// Validation configures the swap gate run against new catalogs before
	// they replace the active one. Nil uses DefaultValidationOptions().
	Validation *ValidationOptions

	// OnSwap runs synchronously on the poll goroutine after each
	// successful swap, typically to rebuild routes and refresh gauges.
	OnSwap func(hash, version string)

	Metrics WatcherMetrics

	// StaleThreshold is how long since the last successful hash fetch
	// before the watcher logs a staleness warning. Zero defaults to 30
	// minutes.
	StaleThreshold time.Duration
}

// Watcher polls for catalog changes and hot-swaps them into the manager.
type Watcher struct {
	loader     CatalogFetcher
	manager    *Manager
	logger     log.Logger
	interval   time.Duration
	validation ValidationOptions
	onSwap     func(hash, version string)
	metrics    WatcherMetrics

	// last hash observed; a differing fetch triggers a load
	currentHash string

	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	pollCount int64
	swapCount int64
}

// NewWatcher creates a catalog watcher. Call Run to start the poll loop.
func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	// Start from whatever the manager already holds so the first poll
	// only downloads on a real change.
	currentHash := ""
	if snap, ok := opts.Manager.Get(); ok {
		currentHash = snap.Meta.SHA256
	}

	validation := DefaultValidationOptions()
	if opts.Validation != nil {
		validation = *opts.Validation
	}

	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Minute
	}

	return &Watcher{
		loader:         opts.Loader,
		manager:        opts.Manager,
		logger:         opts.Logger,
		interval:       interval,
		validation:     validation,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		currentHash:    currentHash,
		staleThreshold: staleThreshold,
		lastSuccessAt:  time.Now(),
	}
}

// Run drives the poll loop until ctx is cancelled. Launch it on its own
// goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "catalog watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "catalog watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)

			if result == pollFetchError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "catalog watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				// error streak over, back to the configured cadence
				w.logger.Info(ctx, "catalog watcher: recovered, resuming normal interval",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}

			// Staleness transitions are logged once, not every poll.
			if result != pollFetchError {
				// anything but a fetch error refreshed lastSuccessAt
				if w.staleLogged {
					w.logger.Info(ctx, "catalog watcher: staleness recovered")
					w.staleLogged = false
					if w.metrics != nil {
						w.metrics.SetWatcherStale(false)
					}
				}
			} else if time.Since(w.lastSuccessAt) > w.staleThreshold {
				if !w.staleLogged {
					w.logger.Error(ctx, fmt.Errorf("last successful poll was %s ago", time.Since(w.lastSuccessAt).Truncate(time.Second)),
						"catalog watcher: catalog is stale, unable to verify freshness",
					)
					w.staleLogged = true
					if w.metrics != nil {
						w.metrics.SetWatcherStale(true)
					}
				}
			}
		}
	}
}

// checkOnce runs one fetch-compare-swap cycle and reports what happened
// so Run can adjust its timing.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	hash, err := w.loader.FetchCurrentHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "catalog watcher: hash fetch failed")
		if w.metrics != nil {
			w.metrics.IncWatcherError("fetch")
		}
		return pollFetchError
	}

	now := time.Now()
	w.lastSuccessAt = now
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(float64(now.Unix()))
	}

	// Same hash is the steady state.
	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "catalog watcher: new catalog hash detected",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)

	loadStart := time.Now()
	snap, err := w.loader.LoadHash(ctx, hash)
	loadDur := time.Since(loadStart).Seconds()
	if w.metrics != nil {
		w.metrics.ObserveCatalogLoadDuration(loadDur)
	}

	if err != nil {
		w.logger.Error(ctx, err, "catalog watcher: failed to load catalog",
			"hash", truncHash(hash),
		)
		if w.metrics != nil {
			w.metrics.IncWatcherError("load")
		}
		return pollLoadError
	}

	// swap gate
	if err := ValidateSnapshot(snap, w.validation); err != nil {
		w.logger.Error(ctx, err, "catalog watcher: new catalog failed validation, keeping current routes",
			"rejected_hash", truncHash(hash),
			"current_hash", truncHash(w.currentHash),
		)
		if w.metrics != nil {
			w.metrics.IncWatcherError("validation")
		}
		return pollValidationError
	}

	// The displaced snapshot stays reachable only through sessions that
	// were built from it.
	oldHash := w.currentHash
	w.manager.Set(*snap)
	w.swapCount++

	version := w.manager.CatalogVersion()

	w.logger.Info(ctx, "catalog watcher: catalog swapped",
		"old_hash", truncHash(oldHash),
		"new_hash", truncHash(hash),
		"version", version,
		"entries", w.manager.Entries(),
		"total_swaps", w.swapCount,
	)

	w.currentHash = hash

	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}

	// A panicking callback must not kill the poll loop.
	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
						"catalog watcher: OnSwap callback panicked, continuing",
						"hash", truncHash(hash),
					)
				}
			}()
			w.onSwap(hash, version)
		}()
	}

	return pollSwapped
}

// backoffDuration doubles the poll interval per consecutive error, capped
// at maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(w.consecutiveErrs))
	d := time.Duration(float64(w.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// truncHash shortens a hash for log lines.
func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
