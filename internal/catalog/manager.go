package catalog

import (
	"sync/atomic"
	"time"
)

// Manager holds the active catalog snapshot behind an atomic pointer.
// Request handlers read it on every lookup, so swaps must never block
// readers. The previously active snapshot is retained for Rollback.
type Manager struct {
	active   atomic.Pointer[Snapshot]
	previous atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set installs s as the active snapshot and keeps the one it displaced.
func (m *Manager) Set(s Snapshot) {
	// The manager owns its own copy; callers may keep mutating theirs.
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	if old := m.active.Swap(cp); old != nil {
		m.previous.Store(old)
	}
}

// Rollback restores the previously active snapshot, if any. Used when a
// swapped catalog turns out to be bad in practice despite passing validation.
func (m *Manager) Rollback() bool {
	prev := m.previous.Swap(nil)
	if prev == nil {
		return false
	}
	m.active.Store(prev)
	return true
}

// Get returns the active snapshot. ok is false until the first Set lands
// a snapshot with a usable catalog.
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.Catalog != nil
}

// CatalogVersion and CatalogHash satisfy httpmw.CatalogInfo so responses
// can be stamped with the identity of the catalog that served them.

func (m *Manager) CatalogVersion() string {
	s := m.active.Load()
	if s == nil {
		return ""
	}
	return s.Meta.Version
}

func (m *Manager) CatalogHash() string {
	s := m.active.Load()
	if s == nil {
		return ""
	}
	return s.Meta.SHA256
}

// Source reports where the active catalog came from, or SourceUnknown
// before the first Set.
func (m *Manager) Source() Source {
	s := m.active.Load()
	if s == nil {
		return SourceUnknown
	}
	return s.Meta.Source
}

// LoadedAt reports when the active snapshot was installed, zero before
// the first Set.
func (m *Manager) LoadedAt() time.Time {
	s := m.active.Load()
	if s == nil {
		return time.Time{}
	}
	return s.LoadedAt
}

// Entries returns the entry count of the active catalog, for gauges.
func (m *Manager) Entries() int {
	s := m.active.Load()
	if s == nil || s.Catalog == nil {
		return 0
	}
	return len(s.Catalog.Entries)
}
