package log

import "context"

type ctxKey struct{}

// WithContext returns a child context carrying l. Middleware attaches a
// request-scoped logger this way and handlers recover it with FromContext.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger carried by ctx. When none was attached
// it returns the no-op logger, so call sites never need a nil check.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
