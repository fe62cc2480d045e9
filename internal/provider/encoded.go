package provider

import "fmt"

// Encoded wraps a provider whose bytes are already compressed and records
// the transfer encoding for the transport to declare. Reads pass straight
// through: no transcoding happens here, the source must hold the encoded
// bytes and Size reports the encoded length.
type Encoded struct {
	Provider
	encoding string
}

// NewEncoded decorates a ready provider with a declared content encoding.
// An empty encoding defaults to gzip.
func NewEncoded(p Provider, encoding string) (*Encoded, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil source provider", ErrParameter)
	}
	if !p.Ready() {
		return nil, fmt.Errorf("%w: source provider", ErrNotReady)
	}
	if encoding == "" {
		encoding = "gzip"
	}
	return &Encoded{Provider: p, encoding: encoding}, nil
}

// Encoding returns the declared transfer encoding, e.g. "gzip".
func (e *Encoded) Encoding() string { return e.encoding }
