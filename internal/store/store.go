// Package store persists imported records in Postgres through pgx.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Postgres error codes that get a readable description.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeStringTooLong       = "22001"
	codeDeadlock            = "40P01"
)

// describeError rewrites Postgres errors so the import error catalogue can
// classify them. Other errors are returned unchanged.
func describeError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("duplicate key: %s already exists (%s): %w", subject(pgErr), pgErr.ConstraintName, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("foreign key: %s does not exist: %w", subject(pgErr), err)
	case codeStringTooLong:
		return fmt.Errorf("value too long for %s: %w", subject(pgErr), err)
	case codeDeadlock:
		return fmt.Errorf("deadlock: %w", err)
	}
	return err
}

// subject names what a constraint error is about, falling back to the table.
func subject(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	// Detail reads like: Key (institution_id, lower(email))=(..., jane@x.com) already exists.
	if d := pgErr.Detail; strings.HasPrefix(d, "Key (") {
		if end := strings.Index(d, ")="); end > 0 {
			return d[len("Key ("):end]
		}
	}
	if pgErr.TableName != "" {
		return pgErr.TableName
	}
	return "value"
}
