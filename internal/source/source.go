// Package source opens byte sources referenced by catalog entries. A
// reference is a URI: file paths (bare or file://), S3 objects (s3://),
// and HTTP URLs (http:// or https://). Each scheme yields an [Opener]
// that hands out fresh read handles, so providers can reopen a source
// after a transport failure without knowing what sits behind it.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Info describes a source at stat time.
type Info struct {
	Name string
	Size int64
}

// Opener opens read handles onto one byte source. Every call returns a
// fresh handle positioned at the start; handles are independent and the
// caller closes each one.
type Opener interface {
	Open(ctx context.Context) (io.ReadSeekCloser, error)
	Stat(ctx context.Context) (Info, error)
}

var (
	// ErrNotExist reports a reference that resolved cleanly but points at
	// nothing: a missing file, S3 key, or a 404ing URL.
	ErrNotExist = errors.New("source does not exist")

	// ErrInvalidRef reports a reference that cannot be resolved at all.
	ErrInvalidRef = errors.New("invalid source reference")
)

// Deps carries the clients Resolve hands to scheme-specific openers.
// A nil HTTP client falls back to http.DefaultClient; a nil S3 client
// makes s3:// references unresolvable.
type Deps struct {
	S3   S3Client
	HTTP *http.Client

	// FileRoot confines file references to a directory when set.
	FileRoot string
}

// Resolve picks an opener for ref by its URI scheme. A bare path with no
// scheme is treated as a local file.
func Resolve(ref string, deps Deps) (Opener, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrInvalidRef)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "", "file":
		name := ref
		if u.Scheme != "" {
			// file://host/path keeps the host as a leading segment, the
			// same way a shell would treat file://etc/passwd.
			name = u.Path
			if u.Host != "" {
				name = path.Join(u.Host, u.Path)
			}
		}
		return NewFile(deps.FileRoot, name)
	case "s3":
		if deps.S3 == nil {
			return nil, fmt.Errorf("%w: s3 reference %q without an s3 client", ErrInvalidRef, ref)
		}
		bucket := u.Host
		key := strings.TrimPrefix(u.Path, "/")
		if bucket == "" || key == "" {
			return nil, fmt.Errorf("%w: s3 reference %q needs bucket and key", ErrInvalidRef, ref)
		}
		return NewS3(deps.S3, bucket, key), nil
	case "http", "https":
		return NewHTTP(deps.HTTP, ref), nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRef, u.Scheme)
	}
}
