package catalog

import (
	"time"

	"github.com/keithlinneman/chunkd/internal/cryptoutil"
)

// Seed builds a snapshot from an embedded catalog document. It goes through
// the same parse and validation path as loaded catalogs, so a broken seed
// fails at startup instead of serving.
func Seed(data []byte) (*Snapshot, error) {
	cat, err := Parse(data)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Snapshot{
		Catalog: cat,
		Meta: Meta{
			Version:    cat.Version,
			SHA256:     cryptoutil.SHA256Hex(data),
			VerifiedAt: now,
			Source:     SourceSeed,
		},
		LoadedAt: now,
	}, nil
}
