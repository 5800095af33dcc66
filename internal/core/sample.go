package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// SampleHeaders returns the template header row: one column per field, named
// by its label so the suggester maps every column.
func SampleHeaders(schema Schema) []string {
	headers := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		headers[i] = f.Label
	}
	return headers
}

// SampleCSV writes the downloadable template: the header row plus two
// example rows taken from each field's Examples.
func SampleCSV(w io.Writer, schema Schema) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SampleHeaders(schema)); err != nil {
		return fmt.Errorf("write sample header: %w", err)
	}
	for i := 0; i < 2; i++ {
		row := make([]string, len(schema.Fields))
		for j, f := range schema.Fields {
			row[j] = f.Examples[i]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write sample row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SampleFileName returns the download name of a schema's template.
func SampleFileName(schema Schema) string {
	return schema.Entity + "_import_template.csv"
}
