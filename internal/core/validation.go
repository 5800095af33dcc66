package core

// validation.go converts raw rows into typed records.
//
// Validation happens at two levels:
//  1. Required fields: a row missing any of them is excluded, with one error
//     per missing field.
//  2. Format checks: malformed emails and dates are reported but do not
//     exclude the row. A bad email is kept as text; a bad date is dropped
//     from the record because it cannot be stored as a date.
//
// Row numbers in errors use display numbering (data index + 2).

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Advisory messages for malformed optional fields.
const (
	MsgInvalidEmail = "Invalid email format"
	MsgInvalidDate  = "Invalid date format"
)

var validate = validator.New()

// ValidationOutcome holds the rows that may be committed and every problem found.
type ValidationOutcome struct {
	ValidRows []ValidRow
	Errors    []ValidationError
}

// RowValidator validates raw rows against a schema through a fixed set of mappings.
type RowValidator struct {
	schema   Schema
	mappings []ColumnMapping
}

// NewRowValidator creates a validator. Mappings targeting Ignore or fields the
// schema does not know are skipped.
func NewRowValidator(schema Schema, mappings []ColumnMapping) *RowValidator {
	active := make([]ColumnMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.TargetField == Ignore {
			continue
		}
		if _, ok := schema.Field(m.TargetField); !ok {
			continue
		}
		active = append(active, m)
	}
	return &RowValidator{schema: schema, mappings: active}
}

// ValidateRows validates every row in source order.
func ValidateRows(rows []RawRow, mappings []ColumnMapping, schema Schema) ValidationOutcome {
	return NewRowValidator(schema, mappings).ValidateAll(rows)
}

// ValidateAll validates every row in source order.
func (v *RowValidator) ValidateAll(rows []RawRow) ValidationOutcome {
	out := ValidationOutcome{
		ValidRows: make([]ValidRow, 0, len(rows)),
		Errors:    []ValidationError{},
	}
	for i, raw := range rows {
		row := i + 2
		rec, errs, ok := v.ValidateRow(row, raw)
		out.Errors = append(out.Errors, errs...)
		if ok {
			out.ValidRows = append(out.ValidRows, ValidRow{Row: row, Record: rec})
		}
	}
	return out
}

// ValidateRow converts one raw row. ok is false when a required field is missing.
func (v *RowValidator) ValidateRow(row int, raw RawRow) (rec Record, errs []ValidationError, ok bool) {
	values := make(map[Field]string, len(v.mappings))
	for _, m := range v.mappings {
		val := strings.TrimSpace(raw[m.SourceColumn])
		if val == "" {
			continue
		}
		// A later column mapped to the same field overwrites an earlier one.
		values[m.TargetField] = val
	}

	for _, f := range v.schema.Fields {
		if f.Required && values[f.Name] == "" {
			errs = append(errs, ValidationError{
				Row:     row,
				Field:   f.Name,
				Message: f.Label + " is required",
			})
		}
	}
	if len(errs) > 0 {
		return nil, errs, false
	}

	rec = make(Record, len(values))
	for _, f := range v.schema.Fields {
		val, present := values[f.Name]
		if !present {
			continue
		}
		if f.Normalizer != nil {
			val = f.Normalizer(val)
		}

		switch f.Kind {
		case KindEmail:
			if !isEmail(val) {
				errs = append(errs, ValidationError{Row: row, Field: f.Name, Message: MsgInvalidEmail})
			}
			rec[f.Name] = TextValue(val)
		case KindDate:
			t, parsed := ParseDate(val)
			if !parsed {
				errs = append(errs, ValidationError{Row: row, Field: f.Name, Message: MsgInvalidDate})
				continue
			}
			rec[f.Name] = DateValue(t)
		case KindList:
			rec[f.Name] = ListValue(SplitList(val))
		default:
			rec[f.Name] = TextValue(val)
		}
	}
	return rec, errs, true
}

// isEmail reports whether s looks like local@domain.tld.
func isEmail(s string) bool {
	if validate.Var(s, "required,email") != nil {
		return false
	}
	at := strings.LastIndex(s, "@")
	return strings.Contains(s[at+1:], ".")
}
