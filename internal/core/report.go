package core

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Error report stages.
const (
	StageValidation = "validation"
	StageCommit     = "commit"
)

// ErrorReportHeader is the header row of the downloadable error report.
var ErrorReportHeader = []string{"row", "field", "stage", "message", "data"}

// WriteErrorReport writes validation errors followed by commit errors as CSV,
// each group ordered by row. result may be nil. The data column holds the
// record that failed to commit as JSON.
func WriteErrorReport(w io.Writer, validation []ValidationError, result *ImportResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ErrorReportHeader); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	verrs := make([]ValidationError, len(validation))
	copy(verrs, validation)
	sort.SliceStable(verrs, func(i, j int) bool { return verrs[i].Row < verrs[j].Row })

	for _, e := range verrs {
		if err := cw.Write([]string{strconv.Itoa(e.Row), string(e.Field), StageValidation, e.Message, ""}); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}

	if result != nil {
		cerrs := make([]CommitError, len(result.Errors))
		copy(cerrs, result.Errors)
		sort.SliceStable(cerrs, func(i, j int) bool { return cerrs[i].Row < cerrs[j].Row })

		for _, e := range cerrs {
			data, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("encode row %d: %w", e.Row, err)
			}
			if err := cw.Write([]string{strconv.Itoa(e.Row), "", StageCommit, e.Message, string(data)}); err != nil {
				return fmt.Errorf("write report row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
