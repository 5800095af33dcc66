package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownColumn is returned when a mapping names a header the file does not have.
	ErrUnknownColumn = errors.New("unknown source column")

	// ErrUnknownField is returned when a mapping targets a field the schema does not define.
	ErrUnknownField = errors.New("unknown target field")
)

// MappingTable holds one mapping per source column and accepts user edits.
type MappingTable struct {
	schema   Schema
	mappings []ColumnMapping
	index    map[string]int
}

// NewMappingTable creates a table from initial mappings, usually the output
// of SuggestMappings.
func NewMappingTable(schema Schema, mappings []ColumnMapping) *MappingTable {
	t := &MappingTable{
		schema:   schema,
		mappings: make([]ColumnMapping, len(mappings)),
		index:    make(map[string]int, len(mappings)),
	}
	copy(t.mappings, mappings)
	for i, m := range t.mappings {
		t.index[m.SourceColumn] = i
	}
	return t
}

// UpdateMapping sets the target of sourceColumn. Setting the same target
// twice is a no-op.
func (t *MappingTable) UpdateMapping(sourceColumn string, target Field) error {
	i, ok := t.index[sourceColumn]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, sourceColumn)
	}
	if target != Ignore {
		if _, ok := t.schema.Field(target); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, target)
		}
	}
	t.mappings[i].TargetField = target
	return nil
}

// Mappings returns a copy of the mappings in header order.
func (t *MappingTable) Mappings() []ColumnMapping {
	out := make([]ColumnMapping, len(t.mappings))
	copy(out, t.mappings)
	return out
}

// Target returns the current target of sourceColumn.
func (t *MappingTable) Target(sourceColumn string) (Field, bool) {
	i, ok := t.index[sourceColumn]
	if !ok {
		return "", false
	}
	return t.mappings[i].TargetField, true
}

// MissingRequired returns required fields no column maps to, in schema order.
func (t *MappingTable) MissingRequired() []Field {
	mapped := make(map[Field]bool, len(t.mappings))
	for _, m := range t.mappings {
		if m.TargetField != Ignore {
			mapped[m.TargetField] = true
		}
	}

	var missing []Field
	for _, f := range t.schema.Required() {
		if !mapped[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// IsReadyToProceed reports whether every required field is mapped.
func (t *MappingTable) IsReadyToProceed() bool {
	return len(t.MissingRequired()) == 0
}
