package core

import (
	"strings"
	"unicode"
)

// FieldKind is the expected data type of a target field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindEmail
	KindDate
	KindList
)

// FieldSpec describes one target field of an entity schema.
type FieldSpec struct {
	Name       Field               // Target field key: "first_name"
	Label      string              // Display name, also the sample template header: "First name"
	Kind       FieldKind           // Expected data type
	Required   bool                // Rows without a value are excluded
	Synonyms   []string            // Extra header spellings recognised by the suggester
	Examples   [2]string           // Values for the two sample template rows
	Normalizer func(string) string // Optional transformation applied to text values
}

// Schema describes an importable entity.
type Schema struct {
	Entity string // Unique key: "students"
	Label  string // Display name: "Students"
	Fields []FieldSpec
}

// Field returns the spec for name.
func (s Schema) Field(name Field) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Required returns the required fields in schema order.
func (s Schema) Required() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// FieldNames returns every field name in schema order.
func (s Schema) FieldNames() []Field {
	out := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// synonymIndex maps normalised header spellings to fields. A field's own
// normalised name is always present. The first field to claim a spelling keeps it.
func (s Schema) synonymIndex() map[string]Field {
	idx := make(map[string]Field)
	claim := func(key string, f Field) {
		if key == "" {
			return
		}
		if _, taken := idx[key]; !taken {
			idx[key] = f
		}
	}
	for _, f := range s.Fields {
		claim(NormalizeHeader(string(f.Name)), f.Name)
	}
	for _, f := range s.Fields {
		claim(NormalizeHeader(f.Label), f.Name)
		for _, syn := range f.Synonyms {
			claim(NormalizeHeader(syn), f.Name)
		}
	}
	return idx
}

// NormalizeHeader lowercases h and strips every rune that is not a letter or digit.
func NormalizeHeader(h string) string {
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
