package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Default upload limits.
const (
	DefaultMaxFileSize int64 = 10 * 1024 * 1024
	DefaultMaxRows           = 1000
)

// Format identifies how an uploaded file is decoded.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Table is the parser output: distinct headers in file order plus one raw
// row per non-empty data row, each keyed by exactly those headers.
type Table struct {
	Headers []string
	Rows    []RawRow
}

// ParseError reports a file that could not be decoded or holds no data.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse file: %s: %v", e.Reason, e.Err)
	}
	return "parse file: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// LimitKind names the limit a LimitError exceeded.
type LimitKind string

const (
	LimitFileSize LimitKind = "file size"
	LimitRows     LimitKind = "row count"
)

// LimitError reports an upload over the size or row cap.
type LimitError struct {
	Kind   LimitKind
	Limit  int64
	Actual int64
}

func (e *LimitError) Error() string {
	if e.Kind == LimitRows {
		return fmt.Sprintf("too many rows: %d exceeds the limit of %d", e.Actual, e.Limit)
	}
	return fmt.Sprintf("file too large: exceeds the limit of %d bytes", e.Limit)
}

// DetectFormat picks the decoder from the file extension.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", &ParseError{Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(fileName))}
	}
}

// Parse decodes r as the given format into a Table.
func Parse(r io.Reader, format Format) (*Table, error) {
	return parseLimited(r, format, 0)
}

// parseLimited is Parse with a byte cap applied while reading.
func parseLimited(r io.Reader, format Format, maxBytes int64) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = parseDelimited(WrapForParsing(r, maxBytes))
	case FormatXLSX:
		records, err = parseSpreadsheet(NewLimitedReader(r, maxBytes))
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			return nil, limitErr
		}
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return nil, parseErr
		}
		return nil, &ParseError{Reason: "could not read file", Err: err}
	}
	return buildTable(records)
}

// parseDelimited reads every record. Quotes are parsed leniently and rows
// may carry any number of fields.
func parseDelimited(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader.ReadAll()
}

// parseSpreadsheet returns the cell text of the first worksheet.
func parseSpreadsheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook has no worksheets"}
	}
	return f.GetRows(sheets[0])
}

// buildTable turns decoded records into header-keyed raw rows.
func buildTable(records [][]string) (*Table, error) {
	if len(records) == 0 || isEmptyRow(records[0]) {
		return nil, &ParseError{Reason: "file is empty"}
	}

	headers := normalizeHeaders(records[0])
	rows := make([]RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if isEmptyRow(rec) {
			continue
		}
		row := make(RawRow, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, &ParseError{Reason: "file has no data rows"}
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

// normalizeHeaders trims headers, names blank ones "Column N" and suffixes
// repeats with " (2)", " (3)" and so on.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		name := h
		for taken[name] {
			seen[h]++
			name = fmt.Sprintf("%s (%d)", h, seen[h]+1)
		}
		taken[name] = true
		headers[i] = name
	}
	return headers
}

// isEmptyRow returns true if every value is blank after trimming.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
