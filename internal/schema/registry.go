package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RecordType statically declares one record type's localizable capability.
// Types are registered once at startup; there is no runtime capability
// detection.
type RecordType struct {
	// BaseTable is the unsuffixed physical table holding the base row.
	BaseTable string
	// Versioned marks types whose writes also append immutable version rows.
	Versioned bool
	// HighTraffic hints that existence lookups should be bulk-prepopulated.
	HighTraffic bool
	// LocalizedFields maps each physical table of the type onto the columns
	// stored per locale. Non-localized columns stay on the base row only.
	LocalizedFields map[string][]string
}

// Localized reports whether the type declares any localizable columns.
func (rt RecordType) Localized() bool {
	return len(rt.LocalizedFields) > 0
}

// LocalizedTables returns the physical tables carrying localizable columns,
// sorted for deterministic iteration.
func (rt RecordType) LocalizedTables() []string {
	out := make([]string, 0, len(rt.LocalizedFields))
	for table := range rt.LocalizedFields {
		out = append(out, table)
	}
	sort.Strings(out)
	return out
}

// Registry indexes record types by base table.
type Registry struct {
	types map[string]RecordType
	order []string
}

// NewRegistry returns an empty record-type registry.
func NewRegistry() *Registry {
	return &Registry{types: map[string]RecordType{}}
}

// Register adds a record type. Base tables must be unique.
func (r *Registry) Register(rt RecordType) error {
	if r == nil {
		return fmt.Errorf("registry is not configured")
	}
	base := strings.TrimSpace(rt.BaseTable)
	if base == "" {
		return fmt.Errorf("base table is required")
	}
	if _, exists := r.types[base]; exists {
		return fmt.Errorf("record type %q is already registered", base)
	}
	rt.BaseTable = base
	r.types[base] = rt
	r.order = append(r.order, base)
	return nil
}

// Lookup returns the record type registered for a base table.
func (r *Registry) Lookup(base string) (RecordType, bool) {
	if r == nil {
		return RecordType{}, false
	}
	rt, ok := r.types[strings.TrimSpace(base)]
	return rt, ok
}

// All returns record types in registration order.
func (r *Registry) All() []RecordType {
	if r == nil {
		return nil
	}
	out := make([]RecordType, 0, len(r.order))
	for _, base := range r.order {
		out = append(out, r.types[base])
	}
	return out
}
