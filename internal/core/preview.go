package core

import "sort"

// PreviewSummary contains the summary counts shown before an import is confirmed.
type PreviewSummary struct {
	TotalRows    int `json:"totalRows"`
	ValidRows    int `json:"validRows"`
	ExcludedRows int `json:"excludedRows"`
	WarningRows  int `json:"warningRows"`
	ErrorCount   int `json:"errorCount"`
}

// RowPreview represents a single valid row for preview display.
type RowPreview struct {
	Row    int               `json:"row"`
	Values map[string]string `json:"values"`
}

// ErrorPreview represents a row with validation errors, shown with its source values.
type ErrorPreview struct {
	Row      int               `json:"row"`
	Values   map[string]string `json:"values"`
	Errors   []string          `json:"errors"`
	Excluded bool              `json:"excluded"`
}

// PreviewResponse is what the preview step shows.
type PreviewResponse struct {
	Summary      PreviewSummary `json:"summary"`
	ValidSamples []RowPreview   `json:"validSamples"`
	ErrorSamples []ErrorPreview `json:"errorSamples"`
}

// Sample limits
const (
	maxValidSamples = 10
	maxErrorSamples = 20
)

// BuildPreview summarises a validation outcome over the parsed rows.
func BuildPreview(rawRows []RawRow, outcome ValidationOutcome) PreviewResponse {
	valid := make(map[int]bool, len(outcome.ValidRows))
	for _, vr := range outcome.ValidRows {
		valid[vr.Row] = true
	}

	byRow := make(map[int][]string)
	for _, e := range outcome.Errors {
		byRow[e.Row] = append(byRow[e.Row], e.Message)
	}

	resp := PreviewResponse{
		Summary: PreviewSummary{
			TotalRows:    len(rawRows),
			ValidRows:    len(outcome.ValidRows),
			ExcludedRows: len(rawRows) - len(outcome.ValidRows),
			ErrorCount:   len(outcome.Errors),
		},
		ValidSamples: []RowPreview{},
		ErrorSamples: []ErrorPreview{},
	}

	for _, vr := range outcome.ValidRows {
		if _, warned := byRow[vr.Row]; warned {
			resp.Summary.WarningRows++
		}
		if len(resp.ValidSamples) < maxValidSamples {
			resp.ValidSamples = append(resp.ValidSamples, RowPreview{Row: vr.Row, Values: vr.Record.Strings()})
		}
	}

	rows := make([]int, 0, len(byRow))
	for row := range byRow {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	for _, row := range rows {
		if len(resp.ErrorSamples) >= maxErrorSamples {
			break
		}
		var values map[string]string
		if i := row - 2; i >= 0 && i < len(rawRows) {
			values = rawRows[i]
		}
		resp.ErrorSamples = append(resp.ErrorSamples, ErrorPreview{
			Row:      row,
			Values:   values,
			Errors:   byRow[row],
			Excluded: !valid[row],
		})
	}

	return resp
}

// SessionSnapshot is the serialisable view of a session.
type SessionSnapshot struct {
	ID              string            `json:"id,omitempty"`
	Entity          string            `json:"entity"`
	Step            Step              `json:"step"`
	SourceFileName  string            `json:"sourceFileName,omitempty"`
	Headers         []string          `json:"headers"`
	RawRows         []RawRow          `json:"rawRows"`
	Mappings        []ColumnMapping   `json:"mappings"`
	ReadyToProceed  bool              `json:"readyToProceed"`
	MissingRequired []Field           `json:"missingRequired"`
	ValidRows       []ValidRow        `json:"validRows"`
	Errors          []ValidationError `json:"errors"`
	Preview         *PreviewResponse  `json:"preview,omitempty"`
	Result          *ImportResult     `json:"result,omitempty"`
	StartedBy       *RequestMetadata  `json:"startedBy,omitempty"`
}

// Snapshot returns a copy of the session state for presentation.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		Entity:          s.schema.Entity,
		Step:            s.step,
		SourceFileName:  s.sourceFileName,
		Headers:         nonNil(s.headers),
		RawRows:         nonNil(s.rawRows),
		Mappings:        nonNil(s.Mappings()),
		ReadyToProceed:  s.IsReadyToProceed(),
		MissingRequired: nonNil(s.MissingRequired()),
		ValidRows:       nonNil(s.validRows),
		Errors:          nonNil(s.errors),
		Result:          s.result,
	}
	if s.step == StepPreview || s.step == StepImporting || s.step == StepComplete {
		p := BuildPreview(s.rawRows, ValidationOutcome{ValidRows: s.validRows, Errors: s.errors})
		snap.Preview = &p
	}
	return snap
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
