package catalog

import "errors"

// ReadyErr reports whether a catalog is active, in the shape probe.Func
// wants: nil when ready.
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return errors.New("catalog: no active snapshot")
	}
	return nil
}
