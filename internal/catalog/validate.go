package catalog

import (
	"github.com/keithlinneman/chunkd/internal/xerrors"
)

// ValidationOptions tunes the swap gate. The zero value accepts any
// structurally valid catalog, empty ones included.
type ValidationOptions struct {
	// MinEntries rejects catalogs with fewer than this many entries.
	// 0 disables the check.
	MinEntries int
}

// DefaultValidationOptions is what the watcher uses unless told otherwise.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MinEntries: 1,
	}
}

// ValidateSnapshot is the swap gate: it screens a loaded catalog before
// the watcher installs it, so a broken or empty route set never goes
// active. The first failing check is the returned error.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.Catalog == nil {
		return xerrors.New("validate: snapshot has nil catalog")
	}
	if snap.Meta.SHA256 == "" {
		return xerrors.New("validate: snapshot has no content hash")
	}

	if err := snap.Catalog.Validate(); err != nil {
		return xerrors.Wrap(err, "validate: catalog")
	}

	if opts.MinEntries > 0 && len(snap.Catalog.Entries) < opts.MinEntries {
		return xerrors.Newf("validate: catalog has %d entries, minimum is %d",
			len(snap.Catalog.Entries), opts.MinEntries)
	}

	return nil
}
