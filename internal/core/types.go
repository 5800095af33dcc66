package core

import (
	"context"
	"fmt"
)

// Step is the position of an import session in its lifecycle.
type Step string

const (
	StepUpload    Step = "upload"
	StepMapping   Step = "mapping"
	StepPreview   Step = "preview"
	StepImporting Step = "importing"
	StepComplete  Step = "complete"
)

// Field names a target attribute of an entity schema.
type Field string

// Ignore is the mapping target for source columns that are not imported.
const Ignore Field = "ignore"

// RawRow is one parsed data row keyed by source header. Values are the cell
// text exactly as read from the file.
type RawRow map[string]string

// ColumnMapping assigns one source column to a target field or to Ignore.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn"`
	TargetField  Field  `json:"targetField"`
}

// ValidationError describes one problem found in one row during validation.
// Row uses display numbering: the header is row 1, the first data row is row 2.
type ValidationError struct {
	Row     int    `json:"row"`
	Field   Field  `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// ValidRow is a row that passed the required-field check, with its display row.
type ValidRow struct {
	Row    int    `json:"row"`
	Record Record `json:"record"`
}

// CommitError records a row the entity creator rejected.
type CommitError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
	Data    Record `json:"data"`
}

// ImportResult summarizes a finished commit.
// TotalRows always equals SuccessfulRows + FailedRows.
type ImportResult struct {
	Success        bool          `json:"success"`
	TotalRows      int           `json:"totalRows"`
	SuccessfulRows int           `json:"successfulRows"`
	FailedRows     int           `json:"failedRows"`
	Errors         []CommitError `json:"errors"`
}

// CommitProgress is reported after every committed batch.
type CommitProgress struct {
	Batch      int  `json:"batch"`
	Batches    int  `json:"batches"`
	Processed  int  `json:"processed"`
	Total      int  `json:"total"`
	Successful int  `json:"successful"`
	Failed     int  `json:"failed"`
	Done       bool `json:"done"`
}

// Percent returns the progress as a percentage (0-100).
func (p CommitProgress) Percent() int {
	if p.Total <= 0 {
		if p.Done {
			return 100
		}
		return 0
	}
	return (p.Processed * 100) / p.Total
}

// ProgressCallback is called after each batch during commit.
type ProgressCallback func(CommitProgress)

// Entity is the persisted record returned by an EntityCreator.
type Entity struct {
	ID string `json:"id"`
}

// EntityCreator persists one record. Implementations must be safe for
// concurrent use when the commit concurrency is greater than one.
type EntityCreator interface {
	CreateEntity(ctx context.Context, rec Record) (Entity, error)
}

// CreatorFunc adapts a function to the EntityCreator interface.
type CreatorFunc func(ctx context.Context, rec Record) (Entity, error)

// CreateEntity calls f(ctx, rec).
func (f CreatorFunc) CreateEntity(ctx context.Context, rec Record) (Entity, error) {
	return f(ctx, rec)
}
