package core

import "fmt"

// Table is a tabular query result with ordered columns.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Row returns row i as a column-name keyed map.
func (t *Table) Row(i int) map[string]any {
	if t == nil || i < 0 || i >= len(t.Rows) {
		return nil
	}
	m := make(map[string]any, len(t.Columns))
	for j, col := range t.Columns {
		if j < len(t.Rows[i]) {
			m[col] = t.Rows[i][j]
		}
	}
	return m
}

// Records returns all rows as column-name keyed maps.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		out = append(out, t.Row(i))
	}
	return out
}

// ResultKind distinguishes the three outcomes of a statement.
type ResultKind int

const (
	// ResultRows means the statement returned at least one row.
	ResultRows ResultKind = iota
	// ResultEmpty means the statement succeeded without rows.
	ResultEmpty
	// ResultError means the statement failed.
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultRows:
		return "rows"
	case ResultEmpty:
		return "empty"
	case ResultError:
		return "error"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the tri-state outcome of executing a statement.
type Result struct {
	Kind  ResultKind
	Table *Table
	Err   error
}

// NewResult folds a table and an error into a Result.
func NewResult(t *Table, err error) Result {
	switch {
	case err != nil:
		return Result{Kind: ResultError, Err: err}
	case t.Empty():
		if t == nil {
			t = &Table{}
		}
		return Result{Kind: ResultEmpty, Table: t}
	default:
		return Result{Kind: ResultRows, Table: t}
	}
}

// OK reports whether the statement succeeded, with or without rows.
func (r Result) OK() bool {
	return r.Kind != ResultError
}
