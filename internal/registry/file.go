package registry

import "github.com/facile-ops/queuerunner/internal/domain"

var _ Registry = (*FileRegistry)(nil)

// FileRegistry serves queue definitions parsed once from the TOML
// configuration file. It never re-reads the source; hot reconfiguration
// via a FileRegistry only happens if the process is restarted, which is
// the documented behavior for file-backed setups (the DB adapter is the
// one that supports live enable/disable and count changes).
type FileRegistry struct {
	defs map[int32]domain.QueueDefinition
}

// NewFileRegistry builds a FileRegistry from the queue definitions decoded
// from config.toml.
func NewFileRegistry(defs []domain.QueueDefinition) *FileRegistry {
	m := make(map[int32]domain.QueueDefinition, len(defs))
	for _, d := range defs {
		m[d.ID] = d
	}
	return &FileRegistry{defs: m}
}

func (f *FileRegistry) List() ([]domain.QueueDefinition, error) {
	out := make([]domain.QueueDefinition, 0, len(f.defs))
	for _, d := range f.defs {
		out = append(out, d)
	}
	return out, nil
}

func (f *FileRegistry) Lookup(id int32) (domain.QueueDefinition, bool) {
	d, ok := f.defs[id]
	return d, ok
}
