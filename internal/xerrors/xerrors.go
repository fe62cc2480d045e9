package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// stackDepth caps how many frames a captured stack keeps. Deep enough for
// any handler chain we run, small enough to stay cheap on the error path.
const stackDepth = 64

// traced carries a full callers snapshot taken where the error was created.
type traced struct {
	err error
	pcs []uintptr
}

func (t *traced) Error() string       { return t.err.Error() }
func (t *traced) Unwrap() error       { return t.err }
func (t *traced) StackPCs() []uintptr { return t.pcs }
func (t *traced) IsXerrorsWrapper()   {}

// note annotates an error with a message and the single PC of the wrap site.
type note struct {
	err error
	msg string
	pc  uintptr
}

func (n *note) Error() string     { return n.msg + ": " + n.err.Error() }
func (n *note) Unwrap() error     { return n.err }
func (n *note) PC() uintptr       { return n.pc }
func (n *note) IsXerrorsWrapper() {}

// New returns an error carrying msg and the stack of the caller.
func New(msg string) error { return &traced{err: errors.New(msg), pcs: callers(3)} }

// Newf is New with fmt.Errorf formatting.
func Newf(format string, args ...any) error {
	return &traced{err: fmt.Errorf(format, args...), pcs: callers(3)}
}

// Wrap annotates err with msg and records the wrap site. Nil err stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &note{err: err, msg: msg, pc: caller(3)}
}

// Wrapf is Wrap with fmt.Errorf formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &note{err: err, msg: fmt.Sprintf(format, args...), pc: caller(3)}
}

// WithStack attaches the caller's stack without changing the message.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &traced{err: err, pcs: callers(3)}
}

// EnsureTrace attaches a stack only if the chain does not already hold one,
// so stacking at several layers keeps the innermost capture.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var t interface{ StackPCs() []uintptr }
	if errors.As(err, &t) && len(t.StackPCs()) > 0 {
		return err
	}
	return &traced{err: err, pcs: callers(3)}
}

// callers snapshots the stack. skip counts runtime.Callers itself, so 3
// lands on the caller of whichever exported constructor invoked us.
func callers(skip int) []uintptr {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}

// caller returns the single PC at skip, or zero when the stack is shorter.
func caller(skip int) uintptr {
	var pc [1]uintptr
	if runtime.Callers(skip, pc[:]) == 0 {
		return 0
	}
	return pc[0]
}
