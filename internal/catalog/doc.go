// Package catalog manages the lifecycle of route catalogs.
//
// A catalog is a YAML document declaring which paths the server streams and
// where each path's bytes come from: inline data, a local file, an S3
// object, an HTTP origin, or an ordered concatenation of sources.
//
// The core components are:
//   - [Catalog]: the parsed document plus structural validation
//   - [Loader]: reads and verifies catalogs from a local file or from SSM+S3
//   - [Manager]: stores the active snapshot using atomic.Pointer for lock-free reads
//   - [Watcher]: polls for hash changes and hot-swaps catalogs into the Manager
//   - [Build]: constructs the provider an entry describes
//
// Catalogs are verified by SHA-256 before they are parsed, and validated
// before they are swapped in, so a broken upload never replaces a working
// route set.
package catalog
