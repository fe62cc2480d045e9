// Package provider defines the content-provider abstraction: offset-addressed
// chunked reads over a declared total size, with a fixed MIME type.
//
// The core components are:
//   - [Provider]: the capability contract every content source implements
//   - [Memory] / [Generator]: in-memory and procedural sources
//   - [Buffered]: a windowed buffer over a seekable random-access source
//   - [Retrying]: bounded reopen/retry over an unreliable source
//   - [Composite]: concatenation of providers into one contiguous range
//   - [Encoded]: a pass-through decorator for pre-encoded content
//
// Reads signal end-of-content with io.EOF and failures with errors that wrap
// one of the kind sentinels in errors.go, so callers can always tell the two
// apart. The read path never panics and never blocks longer than one
// underlying storage operation.
package provider
