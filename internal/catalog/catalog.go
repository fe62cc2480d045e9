package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/chunkd/internal/pathutil"
	"github.com/keithlinneman/chunkd/internal/provider"
	"github.com/keithlinneman/chunkd/internal/xerrors"
)

// Entry declares one streamable path. Exactly one of Data, Source, or
// Parts supplies the bytes.
type Entry struct {
	// Path is the request path, absolute and unique within the catalog.
	Path string `yaml:"path"`

	// Method defaults to GET. HEAD is always served alongside GET.
	Method string `yaml:"method,omitempty"`

	// Source is a file/s3/http URI streamed through a windowed or
	// retrying provider.
	Source string `yaml:"source,omitempty"`

	// Parts concatenates source URIs into one contiguous body.
	Parts []string `yaml:"parts,omitempty"`

	// Data is inline literal content served from memory.
	Data string `yaml:"data,omitempty"`

	// ContentType overrides the type inferred from the path or source.
	ContentType string `yaml:"content_type,omitempty"`

	// Encoding declares the bytes are pre-encoded (e.g. "gzip"); it is
	// echoed as Content-Encoding, never applied.
	Encoding string `yaml:"encoding,omitempty"`

	// ChunkBytes overrides the delivery chunk size for this entry.
	ChunkBytes int `yaml:"chunk_bytes,omitempty"`

	// Retry streams through a reopening provider instead of a windowed
	// one. Only meaningful for Source entries.
	Retry bool `yaml:"retry,omitempty"`

	// Buffered controls the windowed provider for Source entries.
	// Unset means true.
	Buffered *bool `yaml:"buffered,omitempty"`
}

type Catalog struct {
	Version string  `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// Parse decodes and structurally validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, xerrors.Wrap(err, "parse catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the whole document and reports every problem at once,
// so a bad upload can be fixed in one pass. A valid catalog may be empty;
// the watcher's swap gate decides whether empty is acceptable.
func (c *Catalog) Validate() error {
	var errs []error

	if c.Version == "" {
		errs = append(errs, errors.New("catalog version is required"))
	}

	seen := make(map[string]int, len(c.Entries))
	for i := range c.Entries {
		e := &c.Entries[i]
		where := fmt.Sprintf("entry %d (%s)", i, e.Path)

		if e.Path == "" {
			errs = append(errs, fmt.Errorf("entry %d: path is required", i))
		} else {
			if !strings.HasPrefix(e.Path, "/") {
				errs = append(errs, fmt.Errorf("%s: path must be absolute", where))
			}
			if pathutil.HasDotSegments(e.Path) {
				errs = append(errs, fmt.Errorf("%s: path contains dot segments", where))
			}
			if prev, dup := seen[e.Path]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate of entry %d", where, prev))
			} else {
				seen[e.Path] = i
			}
		}

		switch e.Method {
		case "", http.MethodGet, http.MethodHead:
		default:
			errs = append(errs, fmt.Errorf("%s: unsupported method %q", where, e.Method))
		}

		set := 0
		if e.Source != "" {
			set++
		}
		if len(e.Parts) > 0 {
			set++
		}
		if e.Data != "" {
			set++
		}
		if set != 1 {
			errs = append(errs, fmt.Errorf("%s: exactly one of source, parts, data is required", where))
		}

		for j, p := range e.Parts {
			if p == "" {
				errs = append(errs, fmt.Errorf("%s: part %d is empty", where, j))
			}
		}

		if e.ChunkBytes != 0 {
			if _, err := provider.NormalizeChunkSize(e.ChunkBytes, 0); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
			}
		}

		if e.Retry && e.Source == "" {
			errs = append(errs, fmt.Errorf("%s: retry requires a source", where))
		}
		if e.Buffered != nil && !*e.Buffered && !e.Retry {
			errs = append(errs, fmt.Errorf("%s: unbuffered entries need retry", where))
		}
		if e.Buffered != nil && e.Source == "" {
			errs = append(errs, fmt.Errorf("%s: buffered only applies to source entries", where))
		}
	}

	return errors.Join(errs...)
}

// Lookup returns the entry for a path, if any.
func (c *Catalog) Lookup(path string) (*Entry, bool) {
	for i := range c.Entries {
		if c.Entries[i].Path == path {
			return &c.Entries[i], true
		}
	}
	return nil, false
}
