package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeOK, "success"},
		{CodeInvalidParameter, "invalid parameter"},
		{CodeBufferTooLarge, "buffer size too large"},
		{CodeBufferTooSmall, "buffer size too small"},
		{CodeProviderError, "content provider error"},
		{CodeNotFound, "resource not found"},
		{CodeAllocationFailed, "memory allocation failed"},
		{CodeTransportError, "transport error"},
		{CodeTimeout, "operation timeout"},
		{CodeUnknown, "unknown error"},
		{Code(99), "unknown error"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%d).String() = %q, want %q", int(tt.code), got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil is success", err: nil, want: CodeOK},
		{name: "chunk too large", err: ErrChunkTooLarge, want: CodeBufferTooLarge},
		{name: "chunk too small", err: ErrChunkTooSmall, want: CodeBufferTooSmall},
		{name: "parameter", err: fmt.Errorf("%w: negative offset", ErrParameter), want: CodeInvalidParameter},
		{name: "resource", err: fmt.Errorf("%w: open source: no such key", ErrResource), want: CodeNotFound},
		{name: "allocation", err: ErrAllocation, want: CodeAllocationFailed},
		{name: "deadline", err: context.DeadlineExceeded, want: CodeTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("chunk wait: %w", context.DeadlineExceeded), want: CodeTimeout},
		{name: "transport write", err: fmt.Errorf("%w: broken pipe", ErrTransport), want: CodeTransportError},
		{name: "peer canceled", err: fmt.Errorf("stream canceled: %w", context.Canceled), want: CodeTransportError},
		{name: "not ready", err: ErrNotReady, want: CodeProviderError},
		{name: "runtime", err: fmt.Errorf("%w: fill at 512: short read", ErrRuntime), want: CodeProviderError},
		{name: "closed", err: ErrClosed, want: CodeProviderError},
		{name: "unclassified", err: errors.New("something else"), want: CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
