package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind sentinels. Every failure returned by a provider wraps exactly one of
// these, so callers classify with errors.Is without parsing messages.
var (
	// ErrParameter reports a malformed argument (nil data, negative offset,
	// empty path).
	ErrParameter = errors.New("invalid parameter")

	// ErrResource reports that the underlying storage is missing or cannot
	// be opened.
	ErrResource = errors.New("resource unavailable")

	// ErrConfig reports a configuration value outside its accepted bounds.
	ErrConfig = errors.New("configuration out of bounds")

	// ErrRuntime reports a transient or permanent read/seek failure.
	ErrRuntime = errors.New("read failure")

	// ErrAllocation reports that a working buffer could not be obtained.
	ErrAllocation = errors.New("allocation failed")

	// ErrNotReady reports use of a provider that never became ready.
	ErrNotReady = errors.New("provider not ready")

	// ErrClosed reports use of a provider after Close.
	ErrClosed = errors.New("provider closed")

	// ErrTransport reports a failed write towards the consumer. Providers
	// never return it; the delivery path does.
	ErrTransport = errors.New("transport write failed")
)

// Chunk-size bound violations carry the config kind plus direction.
var (
	ErrChunkTooSmall = fmt.Errorf("%w: chunk size below %d", ErrConfig, MinChunkSize)
	ErrChunkTooLarge = fmt.Errorf("%w: chunk size above %d", ErrConfig, MaxChunkSize)
)

// Code classifies registration and delivery outcomes for API callers.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidParameter
	CodeBufferTooLarge
	CodeBufferTooSmall
	CodeProviderError
	CodeNotFound
	CodeAllocationFailed
	CodeTransportError
	CodeTimeout
	CodeUnknown
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "success"
	case CodeInvalidParameter:
		return "invalid parameter"
	case CodeBufferTooLarge:
		return "buffer size too large"
	case CodeBufferTooSmall:
		return "buffer size too small"
	case CodeProviderError:
		return "content provider error"
	case CodeNotFound:
		return "resource not found"
	case CodeAllocationFailed:
		return "memory allocation failed"
	case CodeTransportError:
		return "transport error"
	case CodeTimeout:
		return "operation timeout"
	default:
		return "unknown error"
	}
}

// CodeOf maps an error to the closest Code. nil maps to CodeOK.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrChunkTooLarge):
		return CodeBufferTooLarge
	case errors.Is(err, ErrChunkTooSmall):
		return CodeBufferTooSmall
	case errors.Is(err, ErrParameter):
		return CodeInvalidParameter
	case errors.Is(err, ErrResource):
		return CodeNotFound
	case errors.Is(err, ErrAllocation):
		return CodeAllocationFailed
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrTransport), errors.Is(err, context.Canceled):
		return CodeTransportError
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrRuntime), errors.Is(err, ErrClosed):
		return CodeProviderError
	default:
		return CodeUnknown
	}
}
