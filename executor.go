package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// timestampFormat is the fixed textual form for normalized date/time values.
const timestampFormat = time.RFC3339Nano

// Row is one normalized result record, keyed by column name. Values are
// limited to the JSON-friendly subset: strings, numbers, booleans, nil,
// and timestamps rendered as text.
type Row map[string]any

// Executor runs one parameterized statement per call against a pooled
// PostgreSQL connection and materializes the result set into Rows.
// It holds no per-call state, so concurrent calls need no locking.
type Executor struct {
	db      *sql.DB
	maxRows int
}

// NewExecutor wraps db. maxRows caps materialization per statement;
// zero or negative disables the cap.
func NewExecutor(db *sql.DB, maxRows int) *Executor {
	return &Executor{db: db, maxRows: maxRows}
}

// Execute runs query with the given bound parameters and returns every
// row as a normalized Row. A statement that produces no rows (or no
// result description at all) yields an empty, non-nil slice; callers can
// rely on "no rows" being distinct from an error. The rows cursor is
// closed on every exit path.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read result columns")
	}

	results := []Row{}
	for rows.Next() {
		if e.maxRows > 0 && len(results) >= e.maxRows {
			results = append(results, Row{
				"_warning": fmt.Sprintf("Result truncated at %d rows", e.maxRows),
			})
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan row %d", len(results)+1)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}

	return results, nil
}

// normalizeValue maps driver values onto the serializable subset. []byte
// becomes a string, timestamps become fixed-format UTC text, everything
// else (including nil) passes through.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(timestampFormat)
	default:
		return v
	}
}
