package seedassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// seed/ must exist and contain catalog.yaml to satisfy go:embed
//
//go:embed seed
var embedded embed.FS

// CatalogYAML returns the embedded seed catalog document. It is served
// whenever no catalog source is configured, so its entries are inline
// data only and must never reference the filesystem, S3, or the network.
func CatalogYAML() []byte {
	data, err := fs.ReadFile(embedded, "seed/catalog.yaml")
	if err != nil {
		panic(fmt.Errorf("seedassets: read seed catalog: %w", err))
	}
	return data
}
