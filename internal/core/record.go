package core

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the canonical rendering of date values.
const DateLayout = "2006-01-02"

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueText ValueKind = iota
	ValueDate
	ValueList
)

// Value is a typed field value produced by the validator.
type Value struct {
	Kind ValueKind
	Text string
	Date time.Time
	List []string
}

// TextValue returns a text value.
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// DateValue returns a date value.
func DateValue(t time.Time) Value { return Value{Kind: ValueDate, Date: t} }

// ListValue returns a list value. A nil list is stored as an empty list.
func ListValue(items []string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{Kind: ValueList, List: items}
}

// String renders the value as it would appear in a spreadsheet cell.
func (v Value) String() string {
	switch v.Kind {
	case ValueDate:
		return v.Date.Format(DateLayout)
	case ValueList:
		return strings.Join(v.List, ", ")
	default:
		return v.Text
	}
}

// MarshalJSON encodes text as a string, dates as YYYY-MM-DD and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueDate:
		return json.Marshal(v.Date.Format(DateLayout))
	case ValueList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Text)
	}
}

// Record is a validated row keyed by target field.
type Record map[Field]Value

// Text returns the text of field f if it holds a text value.
func (r Record) Text(f Field) (string, bool) {
	v, ok := r[f]
	if !ok || v.Kind != ValueText {
		return "", false
	}
	return v.Text, true
}

// Date returns the date of field f if it holds a date value.
func (r Record) Date(f Field) (time.Time, bool) {
	v, ok := r[f]
	if !ok || v.Kind != ValueDate {
		return time.Time{}, false
	}
	return v.Date, true
}

// List returns the items of field f if it holds a list value.
func (r Record) List(f Field) ([]string, bool) {
	v, ok := r[f]
	if !ok || v.Kind != ValueList {
		return nil, false
	}
	return v.List, true
}

// Strings flattens the record for display and error reports.
func (r Record) Strings() map[string]string {
	out := make(map[string]string, len(r))
	for f, v := range r {
		out[string(f)] = v.String()
	}
	return out
}
