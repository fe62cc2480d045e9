package probe

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/chunkd/internal/xerrors"
)

// Probe reports whether a dependency is serviceable right now. A nil
// error means healthy; the error text is the reason otherwise.
type Probe interface{ Check(context.Context) error }

// Func adapts a function into a Probe.
type Func func(context.Context) error

func (f Func) Check(ctx context.Context) error { return f(ctx) }

// Static returns a probe with a fixed verdict.
func Static(ok bool, reason string) Func {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// Multi passes only when every probe passes, reporting the first
// failure. Nil entries are skipped.
func Multi(ps ...Probe) Func {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one probe passes. Every probe is checked
// regardless, and the last failure becomes the reported reason.
func Any(ps ...Probe) Func {
	return func(ctx context.Context) error {
		var last error
		ok := false
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				last = err
			} else {
				ok = true
			}
		}
		switch {
		case ok:
			return nil
		case last != nil:
			return last
		default:
			return xerrors.New("no healthy probes")
		}
	}
}

// ShutdownGate turns readiness off while the server drains. The zero
// value is an open gate.
type ShutdownGate struct {
	// nil while serving, the drain reason otherwise. One pointer keeps
	// the flag and its reason from tearing under concurrent Set/Clear.
	state atomic.Pointer[string]
}

func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.state.Store(&reason)
}

func (g *ShutdownGate) Clear() { g.state.Store(nil) }

func (g *ShutdownGate) Probe() Func {
	return func(context.Context) error {
		if r := g.state.Load(); r != nil {
			return xerrors.New(*r)
		}
		return nil
	}
}
