package store

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/a7mdelbanna/classboom/internal/core"
)

// ToPgText returns the text of field f, NULL when absent or empty.
func ToPgText(rec core.Record, f core.Field) pgtype.Text {
	s, ok := rec.Text(f)
	if !ok || s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate returns the date of field f, NULL when absent.
func ToPgDate(rec core.Record, f core.Field) pgtype.Date {
	t, ok := rec.Date(f)
	if !ok {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// ToPgTextArray returns the items of field f. Absent lists are stored empty, not NULL.
func ToPgTextArray(rec core.Record, f core.Field) []string {
	items, ok := rec.List(f)
	if !ok || items == nil {
		return []string{}
	}
	return items
}

// ToPgUUID wraps id for a uuid column.
func ToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
