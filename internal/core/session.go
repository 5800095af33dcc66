package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidTransition is wrapped by every TransitionError.
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrNotReady is returned when preview is requested before every required field is mapped.
	ErrNotReady = errors.New("required fields are not mapped")

	// ErrNoValidRows is returned when an import is confirmed with nothing to commit.
	ErrNoValidRows = errors.New("no valid rows to import")
)

// TransitionError reports an action attempted from a step that does not allow it.
type TransitionError struct {
	From   Step
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: cannot %s during the %s step", ErrInvalidTransition, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Limits bounds what a single upload may contain.
type Limits struct {
	MaxFileSize int64
	MaxRows     int
}

// DefaultLimits returns the standard upload limits (10MB, 1000 rows).
func DefaultLimits() Limits {
	return Limits{MaxFileSize: DefaultMaxFileSize, MaxRows: DefaultMaxRows}
}

// Session is one run of the import flow for one entity schema:
// upload, mapping, preview, importing, complete.
//
// A Session is not safe for concurrent use; Service serialises access.
type Session struct {
	schema Schema
	limits Limits

	step           Step
	sourceFileName string
	headers        []string
	rawRows        []RawRow
	mapping        *MappingTable
	validRows      []ValidRow
	errors         []ValidationError
	result         *ImportResult
}

// NewSession creates a session in the upload step.
func NewSession(schema Schema, limits Limits) *Session {
	if limits.MaxFileSize <= 0 {
		limits.MaxFileSize = DefaultMaxFileSize
	}
	if limits.MaxRows <= 0 {
		limits.MaxRows = DefaultMaxRows
	}
	return &Session{schema: schema, limits: limits, step: StepUpload}
}

// Step returns the current step.
func (s *Session) Step() Step { return s.step }

// Schema returns the entity schema being imported.
func (s *Session) Schema() Schema { return s.schema }

// SourceFileName returns the name of the accepted file.
func (s *Session) SourceFileName() string { return s.sourceFileName }

// Headers returns the parsed headers in file order.
func (s *Session) Headers() []string { return s.headers }

// RawRows returns the parsed rows in file order.
func (s *Session) RawRows() []RawRow { return s.rawRows }

// ValidRows returns the rows that passed validation.
func (s *Session) ValidRows() []ValidRow { return s.validRows }

// Errors returns the validation errors of the last preview.
func (s *Session) Errors() []ValidationError { return s.errors }

// Result returns the commit result, nil before the import finishes.
func (s *Session) Result() *ImportResult { return s.result }

// Mappings returns the current column mappings.
func (s *Session) Mappings() []ColumnMapping {
	if s.mapping == nil {
		return nil
	}
	return s.mapping.Mappings()
}

// MissingRequired returns the required fields no column maps to.
func (s *Session) MissingRequired() []Field {
	if s.mapping == nil {
		return s.schema.Required()
	}
	return s.mapping.MissingRequired()
}

// Upload parses the file and moves the session to the mapping step with
// suggested mappings. size is the declared upload size, or -1 if unknown.
// On error the session stays in the upload step unchanged.
func (s *Session) Upload(fileName string, r io.Reader, size int64) error {
	if s.step != StepUpload {
		return &TransitionError{From: s.step, Action: "upload a file"}
	}
	if size > s.limits.MaxFileSize {
		return &LimitError{Kind: LimitFileSize, Limit: s.limits.MaxFileSize, Actual: size}
	}

	format, err := DetectFormat(fileName)
	if err != nil {
		return err
	}
	table, err := parseLimited(r, format, s.limits.MaxFileSize)
	if err != nil {
		return err
	}
	if len(table.Rows) > s.limits.MaxRows {
		return &LimitError{Kind: LimitRows, Limit: int64(s.limits.MaxRows), Actual: int64(len(table.Rows))}
	}

	s.sourceFileName = fileName
	s.headers = table.Headers
	s.rawRows = table.Rows
	s.mapping = NewMappingTable(s.schema, SuggestMappings(table.Headers, s.schema))
	s.step = StepMapping
	return nil
}

// UpdateMapping changes the target of one source column.
func (s *Session) UpdateMapping(sourceColumn string, target Field) error {
	if s.step != StepMapping {
		return &TransitionError{From: s.step, Action: "edit mappings"}
	}
	return s.mapping.UpdateMapping(sourceColumn, target)
}

// IsReadyToProceed reports whether the session may move to preview.
func (s *Session) IsReadyToProceed() bool {
	return s.step == StepMapping && s.mapping.IsReadyToProceed()
}

// ProceedToPreview validates every row against the current mappings and
// moves to the preview step.
func (s *Session) ProceedToPreview() error {
	if s.step != StepMapping {
		return &TransitionError{From: s.step, Action: "preview"}
	}
	if missing := s.mapping.MissingRequired(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotReady, joinFields(missing))
	}

	outcome := ValidateRows(s.rawRows, s.mapping.Mappings(), s.schema)
	s.validRows = outcome.ValidRows
	s.errors = outcome.Errors
	s.step = StepPreview
	return nil
}

// BeginImport moves a previewed session to the importing step and returns
// the rows to commit. Callers that run the commit themselves must finish
// with CompleteImport.
func (s *Session) BeginImport() ([]ValidRow, error) {
	if s.step != StepPreview {
		return nil, &TransitionError{From: s.step, Action: "start an import"}
	}
	if len(s.validRows) == 0 {
		return nil, ErrNoValidRows
	}
	s.step = StepImporting
	return s.validRows, nil
}

// CompleteImport stores the commit result and moves to the complete step.
func (s *Session) CompleteImport(result ImportResult) error {
	if s.step != StepImporting {
		return &TransitionError{From: s.step, Action: "complete an import"}
	}
	s.result = &result
	s.step = StepComplete
	return nil
}

// Import commits the valid rows synchronously and returns the result.
func (s *Session) Import(ctx context.Context, creator EntityCreator, opts CommitOptions) (ImportResult, error) {
	rows, err := s.BeginImport()
	if err != nil {
		return ImportResult{}, err
	}
	result := Commit(ctx, rows, creator, opts)
	if err := s.CompleteImport(result); err != nil {
		return result, err
	}
	return result, nil
}

// Reset discards all data and returns to the upload step.
// It is a no-op in the upload step and rejected while importing.
func (s *Session) Reset() error {
	switch s.step {
	case StepUpload:
		return nil
	case StepImporting:
		return &TransitionError{From: s.step, Action: "reset"}
	}
	*s = Session{schema: s.schema, limits: s.limits, step: StepUpload}
	return nil
}

func joinFields(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
