package mir

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"
)

type Module struct {
	Funcs  []*Func
	byName map[string]FuncID
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{byName: make(map[string]FuncID)}
}

// Add registers f and assigns its FuncID.
func (m *Module) Add(f *Func) (FuncID, error) {
	if f == nil {
		return NoFuncID, fmt.Errorf("nil function")
	}
	if m.byName == nil {
		m.reindex()
	}
	if _, dup := m.byName[f.Name]; dup {
		return NoFuncID, fmt.Errorf("function %s defined twice", f.Name)
	}
	n, err := safecast.Conv[int32](len(m.Funcs))
	if err != nil {
		return NoFuncID, fmt.Errorf("function table overflow: %w", err)
	}
	f.ID = FuncID(n)
	m.Funcs = append(m.Funcs, f)
	m.byName[f.Name] = f.ID
	return f.ID, nil
}

// Lookup finds a function by symbol name.
func (m *Module) Lookup(name string) (*Func, bool) {
	if m == nil {
		return nil, false
	}
	if m.byName == nil {
		m.reindex()
	}
	id, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.Funcs[id], true
}

// Merge appends every function of other, keeping other's order.
func (m *Module) Merge(other *Module) error {
	if other == nil {
		return nil
	}
	for _, f := range other.Funcs {
		if _, err := m.Add(f); err != nil {
			return err
		}
	}
	return nil
}

// Sorted returns the functions ordered by name.
func (m *Module) Sorted() []*Func {
	out := make([]*Func, 0, len(m.Funcs))
	for _, f := range m.Funcs {
		if f != nil {
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, func(a, b *Func) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// reindex rebuilds the name table, e.g. after decoding from the cache.
func (m *Module) reindex() {
	m.byName = make(map[string]FuncID, len(m.Funcs))
	for i, f := range m.Funcs {
		if f == nil {
			continue
		}
		m.byName[f.Name] = FuncID(i) //nolint:gosec // G115: bounded by Add
	}
}
