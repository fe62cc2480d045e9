package log

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	l, err := New(Options{App: "ctx-test", Writer: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parent := context.Background()
	child := WithContext(parent, l)

	if got := FromContext(child); got != l {
		t.Fatal("FromContext did not return the attached logger")
	}
	if got := FromContext(parent); got == l {
		t.Fatal("attaching to a child context leaked into the parent")
	}
}

func TestFromContextFallsBackToNop(t *testing.T) {
	cases := map[string]context.Context{
		"empty":      context.Background(),
		"nil value":  context.WithValue(context.Background(), ctxKey{}, nil),
		"wrong type": context.WithValue(context.Background(), ctxKey{}, "not a logger"),
	}
	for name, ctx := range cases {
		t.Run(name, func(t *testing.T) {
			got := FromContext(ctx)
			if got == nil {
				t.Fatal("FromContext returned nil")
			}
			// must be callable without blowing up
			got.Info(ctx, "quiet")
			got.Error(ctx, errors.New("x"), "quiet")
			if err := got.Sync(); err != nil {
				t.Fatalf("Sync: %v", err)
			}
		})
	}
}

func TestWithContextOverwrites(t *testing.T) {
	first, err := New(Options{App: "first", Writer: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(Options{App: "second", Writer: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := WithContext(WithContext(context.Background(), first), second)
	if got := FromContext(ctx); got != second {
		t.Fatal("inner WithContext did not win")
	}
}
