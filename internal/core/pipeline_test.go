package core_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/core/schemas"
)

func TestPipeline_StudentFile(t *testing.T) {
	content := "First Name,Last Name,Email\n" +
		"Jane,Doe,jane@x.com\n" +
		",Smith,bad-email\n"

	s := core.NewSession(schemas.StudentSchema(), core.DefaultLimits())
	require.NoError(t, s.Upload("students.csv", strings.NewReader(content), int64(len(content))))

	assert.Equal(t, []core.ColumnMapping{
		{SourceColumn: "First Name", TargetField: schemas.FirstName},
		{SourceColumn: "Last Name", TargetField: schemas.LastName},
		{SourceColumn: "Email", TargetField: schemas.Email},
	}, s.Mappings())

	require.NoError(t, s.ProceedToPreview())

	require.Len(t, s.ValidRows(), 1)
	assert.Equal(t, map[string]string{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      "jane@x.com",
	}, s.ValidRows()[0].Record.Strings())
	assert.Equal(t, []core.ValidationError{
		{Row: 3, Field: schemas.FirstName, Message: "First name is required"},
	}, s.Errors())
}

func TestPipeline_ThousandRowsWithFailures(t *testing.T) {
	var b strings.Builder
	b.WriteString("First Name,Last Name\n")
	for i := 1; i <= 1000; i++ {
		fmt.Fprintf(&b, "Student%d,Test\n", i)
	}

	s := core.NewSession(schemas.StudentSchema(), core.DefaultLimits())
	require.NoError(t, s.Upload("students.csv", strings.NewReader(b.String()), -1))
	require.NoError(t, s.ProceedToPreview())
	require.Len(t, s.ValidRows(), 1000)

	// Data rows 501-510 are rejected.
	failing := map[string]bool{}
	for i := 501; i <= 510; i++ {
		failing[fmt.Sprintf("Student%d", i)] = true
	}
	creator := core.CreatorFunc(func(_ context.Context, rec core.Record) (core.Entity, error) {
		name, _ := rec.Text(schemas.FirstName)
		if failing[name] {
			return core.Entity{}, fmt.Errorf("insert %s: duplicate key value", name)
		}
		return core.Entity{ID: name}, nil
	})

	var batches int
	result, err := s.Import(context.Background(), creator, core.CommitOptions{
		OnProgress: func(core.CommitProgress) { batches++ },
	})
	require.NoError(t, err)

	assert.Equal(t, 20, batches)
	assert.Equal(t, 1000, result.TotalRows)
	assert.Equal(t, 990, result.SuccessfulRows)
	assert.Equal(t, 10, result.FailedRows)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 10)
	assert.Equal(t, 502, result.Errors[0].Row)
	assert.Equal(t, 511, result.Errors[9].Row)
	assert.Equal(t, "DB001", core.MapError(fmt.Errorf("%s", result.Errors[0].Message)).Code)
}

func TestPipeline_SampleTemplateRoundTrip(t *testing.T) {
	schema := schemas.StudentSchema()

	var buf bytes.Buffer
	require.NoError(t, core.SampleCSV(&buf, schema))

	s := core.NewSession(schema, core.DefaultLimits())
	require.NoError(t, s.Upload(core.SampleFileName(schema), &buf, int64(buf.Len())))

	for _, m := range s.Mappings() {
		assert.NotEqual(t, core.Ignore, m.TargetField, "template column %q is not recognised", m.SourceColumn)
	}
	require.True(t, s.IsReadyToProceed())
	require.NoError(t, s.ProceedToPreview())

	assert.Len(t, s.ValidRows(), 2)
	assert.Empty(t, s.Errors())

	jane := s.ValidRows()[0].Record
	allergies, _ := jane.List(schemas.Allergies)
	assert.Equal(t, []string{"peanuts", "penicillin"}, allergies)
	_, hasMedications := jane[schemas.Medications]
	assert.False(t, hasMedications)
}
