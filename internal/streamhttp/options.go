package streamhttp

import (
	"errors"
	"fmt"
	"time"

	"github.com/keithlinneman/chunkd/internal/catalog"
	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/provider"
	"github.com/keithlinneman/chunkd/internal/source"
)

// ErrInvalidOptions wraps every configuration error returned by New.
var ErrInvalidOptions = errors.New("streamhttp: invalid options")

// SnapshotSource supplies the currently active catalog snapshot.
// Implemented by catalog.Manager.
type SnapshotSource interface {
	Get() (*catalog.Snapshot, bool)
}

// Metrics is the instrumentation the registry reports while serving.
// The concrete implementation lives in internal/metrics; tests use fakes.
type Metrics interface {
	IncActiveSessions()
	DecActiveSessions()
	IncSessionsTotal(outcome string)
	ObserveSessionDuration(seconds float64)
	ObserveSessionBytes(bytes float64)
	IncProviderErrors(code string)
}

type Options struct {
	Logger log.Logger

	// Catalog supplies the active snapshot, if any. Entries are resolved
	// against the current snapshot on every request, so a swap takes
	// effect immediately for new requests while in-flight sessions keep
	// the providers they were built with. Registered routes always win
	// over catalog entries with the same path.
	Catalog SnapshotSource

	// Source backends available to file routes and catalog entries.
	Source source.Deps

	// DefaultChunkBytes applies to routes that do not set their own chunk
	// size. Zero means provider.DefaultChunkSize.
	DefaultChunkBytes int

	// SessionTimeout bounds each delivery, checked at chunk boundaries.
	// Zero disables the deadline.
	SessionTimeout time.Duration

	Metrics Metrics
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.DefaultChunkBytes == 0 {
		o.DefaultChunkBytes = provider.DefaultChunkSize
	}
}

func (o *Options) validate() error {
	if _, err := provider.NormalizeChunkSize(o.DefaultChunkBytes, 0); err != nil {
		return fmt.Errorf("%w: DefaultChunkBytes: %v", ErrInvalidOptions, err)
	}
	if o.SessionTimeout < 0 {
		return fmt.Errorf("%w: SessionTimeout is negative", ErrInvalidOptions)
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) IncActiveSessions()             {}
func (nopMetrics) DecActiveSessions()             {}
func (nopMetrics) IncSessionsTotal(string)        {}
func (nopMetrics) ObserveSessionDuration(float64) {}
func (nopMetrics) ObserveSessionBytes(float64)    {}
func (nopMetrics) IncProviderErrors(string)       {}
