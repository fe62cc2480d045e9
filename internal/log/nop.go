package log

import "context"

// Nop returns a Logger that drops everything. It backs FromContext's
// fallback and keeps tests quiet.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any)        {}
func (nopLogger) Info(context.Context, string, ...any)         {}
func (nopLogger) Warn(context.Context, string, ...any)         {}
func (nopLogger) Error(context.Context, error, string, ...any) {}
func (nopLogger) Sync() error                                  { return nil }

func (n nopLogger) With(...any) Logger { return n }
