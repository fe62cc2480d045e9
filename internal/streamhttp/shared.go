package streamhttp

import (
	"context"
	"fmt"

	"github.com/keithlinneman/chunkd/internal/provider"
)

// sharedProvider serializes access to one registry-owned provider.
// Providers are single-reader, so concurrent requests for the same route
// queue here: each request acquires the guard, streams, and releases it
// when its session closes. Waiters drop out when their request context
// ends.
type sharedProvider struct {
	sem chan struct{}
	p   provider.Provider
}

func newSharedProvider(p provider.Provider) *sharedProvider {
	return &sharedProvider{sem: make(chan struct{}, 1), p: p}
}

// acquire blocks until the provider is free, rewinds it, and returns a
// lease. Closing the lease releases the guard without closing the
// underlying provider.
func (s *sharedProvider) acquire(ctx context.Context) (provider.Provider, error) {
	select {
	case s.sem <- struct{}{}:
	default:
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for provider: %w", ctx.Err())
		}
	}
	if err := s.p.Reset(); err != nil {
		<-s.sem
		return nil, err
	}
	return &lease{p: s.p, release: func() { <-s.sem }}, nil
}

// Close waits for any in-flight session and closes the underlying
// provider. Called by Registry.Close.
func (s *sharedProvider) Close() error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	return s.p.Close()
}

// lease is the per-request view of a shared provider. Close releases the
// route guard; the registry owns the real Close.
type lease struct {
	p        provider.Provider
	release  func()
	released bool
}

func (l *lease) ReadAt(p []byte, off int64) (int, error) { return l.p.ReadAt(p, off) }

func (l *lease) Size() int64 { return l.p.Size() }

func (l *lease) ContentType() string { return l.p.ContentType() }

func (l *lease) Reset() error { return l.p.Reset() }

func (l *lease) Ready() bool { return l.p.Ready() }

func (l *lease) Close() error {
	if l.released {
		return nil
	}
	l.released = true
	l.release()
	return nil
}
