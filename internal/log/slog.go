package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// slogLogger adapts log/slog to the Logger interface. Records pass
// through stacktraceHandler and traceHandler before reaching the JSON or
// logfmt encoder.
type slogLogger struct {
	h         slog.Handler
	base      []slog.Attr
	withLinks bool
	linkDepth int
}

type hasPC interface{ PC() uintptr }
type hasStack interface{ StackPCs() []uintptr }

const (
	defaultLinkDepth = 8
	stackDepth       = 64
)

func newSlog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	stackLvl := opts.StacktraceLevel
	if stackLvl == 0 {
		stackLvl = slog.LevelError
	}
	linkDepth := opts.MaxErrorLinks
	if linkDepth <= 0 {
		linkDepth = defaultLinkDepth
	}

	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: true}
	var enc slog.Handler
	if opts.JsonFormat {
		enc = slog.NewJSONHandler(w, hopts)
	} else {
		enc = slog.NewTextHandler(w, hopts)
	}

	base := []slog.Attr{slog.String("app", opts.App)}
	if opts.Version != "" {
		base = append(base, slog.String("version", opts.Version))
	}
	if opts.Commit != "" {
		base = append(base, slog.String("commit", opts.Commit))
	}
	if opts.BuildId != "" {
		base = append(base, slog.String("build_id", opts.BuildId))
	}

	return &slogLogger{
		h:         stacktraceHandler{next: traceHandler{next: enc}, level: stackLvl},
		base:      base,
		withLinks: opts.IncludeErrorLinks,
		linkDepth: linkDepth,
	}, nil
}

// With copies the attr set so parent and child can be used concurrently.
func (s *slogLogger) With(kv ...any) Logger {
	attrs := kvAttrs(kv)
	next := make([]slog.Attr, 0, len(s.base)+len(attrs))
	next = append(next, s.base...)
	next = append(next, attrs...)
	return &slogLogger{
		h:         s.h,
		base:      next,
		withLinks: s.withLinks,
		linkDepth: s.linkDepth,
	}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelDebug, msg, kv...)
}

func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelInfo, msg, kv...)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.emit(ctx, slog.LevelWarn, msg, kv...)
}

func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		surface, root := errTypes(err)
		kv = append(kv,
			"err", err,
			"error_type", surface,
			"cause_type", root,
		)
		if chain := errorChain(err); len(chain) > 0 {
			kv = append(kv, "error_chain", chain)
		}
		if s.withLinks {
			kv = append(kv, "error_links", errorLinks(err, s.linkDepth))
		}
	}
	s.emit(ctx, slog.LevelError, msg, kv...)
}

func (s *slogLogger) Sync() error { return nil }

func (s *slogLogger) emit(ctx context.Context, lvl slog.Level, msg string, kv ...any) {
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	// skip runtime.Callers, callerPC, emit, and the level method so the
	// source attr points at the real call site
	r := slog.NewRecord(time.Now(), lvl, msg, callerPC(4))
	r.AddAttrs(s.base...)
	r.AddAttrs(kvAttrs(kv)...)
	_ = s.h.Handle(ctx, r)
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// kvAttrs pairs up a variadic key/value list. Pairs with a non-string key
// and a trailing orphan key are dropped.
func kvAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			attrs = append(attrs, slog.Any(k, kv[i+1]))
		}
	}
	return attrs
}

// traceHandler stamps trace_id and span_id from the context's span, so a
// single delivery can be joined across logs and traces.
type traceHandler struct{ next slog.Handler }

func (h traceHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{next: h.next.WithGroup(name)}
}

// stacktraceHandler attaches a stack attr to records at or above level.
// A stack captured inside the err attr wins over the live one, since it
// points at where the error was made rather than where it got logged.
type stacktraceHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h stacktraceHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h stacktraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		var pcs []uintptr
		r.Attrs(func(a slog.Attr) bool {
			if a.Key != "err" {
				return true
			}
			if hs, ok := a.Value.Any().(hasStack); ok && hs != nil {
				pcs = hs.StackPCs()
			}
			return false
		})
		if len(pcs) == 0 {
			pcs = liveStack()
		}
		r.AddAttrs(slog.String("stack", renderFrames(pcs)))
	}
	return h.next.Handle(ctx, r)
}

func (h stacktraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stacktraceHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h stacktraceHandler) WithGroup(name string) slog.Handler {
	return stacktraceHandler{next: h.next.WithGroup(name), level: h.level}
}

// liveStack captures the stack above the handler chain.
func liveStack() []uintptr {
	pcs := make([]uintptr, stackDepth)
	// skip runtime.Callers, liveStack, and stacktraceHandler.Handle
	return pcs[:runtime.Callers(3, pcs)]
}

// loggingFrame reports whether fn sits between a caller and the encoder.
func loggingFrame(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") || strings.Contains(fn, "/internal/log.")
}

// renderFrames formats pcs as func / file:line pairs, dropping leading
// logging frames and stopping at the runtime boundary.
func renderFrames(pcs []uintptr) string {
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	emitting := false
	for {
		fr, more := frames.Next()
		if fr.Function == "" || strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !emitting && !loggingFrame(fr.Function) {
			emitting = true
		}
		if emitting {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// errorChain flattens err into its messages, outermost first, dropping
// consecutive duplicates produced by plain rewraps.
func errorChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if msg := e.Error(); msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}

	// errors.Join children do not unwrap one at a time, walk them too
	if m, ok := any(err).(interface{ Unwrap() []error }); ok {
		for _, e := range m.Unwrap() {
			if msg := e.Error(); msg != prev {
				out = append(out, msg)
				prev = msg
			}
		}
	}
	return out
}

// errorLinks walks the unwrap chain and records, for each layer that
// knows its origin, the message plus func/file/line. The surface layer
// is always kept so the list is never empty. max <= 0 lifts the cap.
func errorLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 8)
	depth := 0
	for e := err; e != nil && (max <= 0 || depth < max); e = errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		located := false
		switch src := any(e).(type) {
		case hasPC:
			if fn, file, line, ok := frameAt(src.PC()); ok {
				link["func"], link["file"], link["line"] = fn, file, line
				located = true
			}
		case hasStack:
			if fn, file, line, ok := originFrame(src.StackPCs()); ok {
				link["func"], link["file"], link["line"] = fn, file, line
				located = true
			}
		}
		if depth == 0 || located {
			links = append(links, link)
		}
		depth++
	}
	return links
}

// frameAt resolves a single PC recorded at a wrap site.
func frameAt(pc uintptr) (fn, file string, line int, ok bool) {
	if pc == 0 {
		return "", "", 0, false
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function, fr.File, fr.Line, true
}

// originFrame picks the first frame that is not logging or error-wrapping
// plumbing, which is where the error actually came from.
func originFrame(pcs []uintptr) (fn, file string, line int, ok bool) {
	if len(pcs) == 0 {
		return "", "", 0, false
	}
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if fr.Function == "" {
			break
		}
		if !strings.HasPrefix(fr.Function, "runtime.") &&
			!loggingFrame(fr.Function) &&
			!strings.Contains(fr.Function, "/internal/xerrors.") {
			return fr.Function, fr.File, fr.Line, true
		}
		if !more {
			break
		}
	}
	return "", "", 0, false
}

// errTypes names the outermost non-wrapper type and the root type of the
// chain. Wrapper noise hides what actually failed, so it is skipped when
// picking the surface.
func errTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if wrapperType(e) {
			continue
		}
		surface = fmt.Sprintf("%T", e)
		break
	}
	if surface == "" {
		// the whole chain was wrappers
		surface = fmt.Sprintf("%T", err)
	}

	last := err
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
	}
	root = fmt.Sprintf("%T", last)

	return surface, root
}

// wrapperType reports whether e only decorates another error: one of our
// xerrors wrappers, or fmt.Errorf's %w wrapper.
func wrapperType(e error) bool {
	if _, ok := e.(interface{ IsXerrorsWrapper() }); ok {
		return true
	}
	t := reflect.TypeOf(e)
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() == "fmt" && t.Name() == "wrapError"
}
