package seedassets

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/keithlinneman/chunkd/internal/catalog"
)

// ---------------------------------------------------------------------------
// CatalogYAML
// ---------------------------------------------------------------------------

func TestCatalogYAML_ReturnsNonEmpty(t *testing.T) {
	data := CatalogYAML()
	if len(data) == 0 {
		t.Fatal("CatalogYAML() returned empty document")
	}
}

func TestCatalogYAML_Idempotent(t *testing.T) {
	d1 := CatalogYAML()
	d2 := CatalogYAML()

	if string(d1) != string(d2) {
		t.Fatal("CatalogYAML() returned different documents across calls")
	}
}

func TestCatalogYAML_MentionsSeed(t *testing.T) {
	data := string(CatalogYAML())

	// Don't pin exact copy, just that the served root explains itself
	lower := strings.ToLower(data)
	if !strings.Contains(lower, "seed") {
		t.Fatalf("seed catalog doesn't mention it is the seed: %q", data)
	}
}

// ---------------------------------------------------------------------------
// Embedded FS structure
// ---------------------------------------------------------------------------

func TestEmbeddedFS_HasSeedDir(t *testing.T) {
	entries, err := fs.ReadDir(embedded, "seed")
	if err != nil {
		t.Fatalf("read seed dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("seed/ is empty")
	}

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}

	if !names["catalog.yaml"] {
		t.Error("seed/ missing catalog.yaml")
	}
}

// ---------------------------------------------------------------------------
// Contract: the seed document must survive catalog validation and must
// not depend on anything outside the binary
// ---------------------------------------------------------------------------

func TestCatalogYAML_ParsesAsCatalog(t *testing.T) {
	cat, err := catalog.Parse(CatalogYAML())
	if err != nil {
		t.Fatalf("seed catalog does not parse: %v", err)
	}
	if cat.Version == "" {
		t.Fatal("seed catalog has no version")
	}
	if len(cat.Entries) == 0 {
		t.Fatal("seed catalog has no entries")
	}
}

func TestCatalogYAML_ServesRoot(t *testing.T) {
	cat, err := catalog.Parse(CatalogYAML())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if _, ok := cat.Lookup("/"); !ok {
		t.Fatal("seed catalog must serve /")
	}
}

func TestCatalogYAML_InlineDataOnly(t *testing.T) {
	cat, err := catalog.Parse(CatalogYAML())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// The seed must work with no filesystem, S3, or network access
	for _, e := range cat.Entries {
		if e.Source != "" {
			t.Errorf("seed entry %s references external source %q", e.Path, e.Source)
		}
		if len(e.Parts) > 0 {
			t.Errorf("seed entry %s references external parts", e.Path)
		}
		if e.Data == "" {
			t.Errorf("seed entry %s has no inline data", e.Path)
		}
	}
}

func TestCatalogYAML_BuildsSeedSnapshot(t *testing.T) {
	snap, err := catalog.Seed(CatalogYAML())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if snap.Meta.Source != catalog.SourceSeed {
		t.Fatalf("snapshot source = %q, want %q", snap.Meta.Source, catalog.SourceSeed)
	}
	if snap.Meta.SHA256 == "" {
		t.Fatal("snapshot has no hash")
	}
}
