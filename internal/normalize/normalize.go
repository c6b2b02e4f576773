// Package normalize extracts values from MindsDB result tables whose shape
// varies between server versions.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kleos-cli/kleos/pkg/core"
)

// ErrColumnNotFound is returned when none of the requested aliases is a
// column of the table.
var ErrColumnNotFound = errors.New("column not found")

// ErrNoRows is returned when a value is requested from an empty table.
var ErrNoRows = errors.New("result has no rows")

// Column alias sets used by the commands.
var (
	DatabaseColumns = []string{"Database", "name", "NAME"}
	NameColumns     = []string{"name", "NAME", "Name"}
	AnswerColumns   = []string{"answer", "response"}
	StatusColumns   = []string{"status", "STATUS"}
	// ContentColumns and ScoreColumns locate the text and ranking of a
	// knowledge base search hit.
	ContentColumns = []string{"chunk_content", "content"}
	ScoreColumns   = []string{"relevance", "distance", "score"}
	// ModelColumns are the list-models display columns.
	ModelColumns = []string{"name", "status", "engine", "version", "active", "predict"}
)

// ResolveColumn returns the index and actual name of the first alias that
// is a column of t. Each alias is tried exactly, then case-insensitively.
func ResolveColumn(t *core.Table, aliases ...string) (int, string, error) {
	if t == nil {
		return -1, "", fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(aliases, ", "))
	}
	for _, alias := range aliases {
		for i, col := range t.Columns {
			if col == alias {
				return i, col, nil
			}
		}
		for i, col := range t.Columns {
			if strings.EqualFold(col, alias) {
				return i, col, nil
			}
		}
	}
	return -1, "", fmt.Errorf("%w: %s (have %s)", ErrColumnNotFound,
		strings.Join(aliases, ", "), strings.Join(t.Columns, ", "))
}

// HasValue reports whether any row holds value, compared case-insensitively,
// under the first alias column present.
func HasValue(t *core.Table, aliases []string, value string) bool {
	i, _, err := ResolveColumn(t, aliases...)
	if err != nil {
		return false
	}
	for _, row := range t.Rows {
		if i < len(row) && strings.EqualFold(Text(row[i]), value) {
			return true
		}
	}
	return false
}

// DatabaseExists reports whether a SHOW DATABASES result lists name.
func DatabaseExists(t *core.Table, name string) bool {
	return HasValue(t, DatabaseColumns, name)
}

// PickRow returns the first row whose name column matches name, or the
// first row when none does. multiple reports whether t had more than one
// row, which callers surface as a warning.
func PickRow(t *core.Table, nameAliases []string, name string) (row map[string]any, multiple bool, err error) {
	if t.Empty() {
		return nil, false, ErrNoRows
	}
	return t.Row(pickIndex(t, nameAliases, name)), t.Len() > 1, nil
}

func pickIndex(t *core.Table, nameAliases []string, name string) int {
	if i, _, err := ResolveColumn(t, nameAliases...); err == nil && name != "" {
		for r, vals := range t.Rows {
			if i < len(vals) && strings.EqualFold(Text(vals[i]), name) {
				return r
			}
		}
	}
	return 0
}

// PickPairs describes one object. A key/value shaped result is flattened
// whole. Otherwise the row picked as by PickRow is returned in column
// order, and multiple reports that other rows were dropped.
func PickPairs(t *core.Table, nameAliases []string, name string) (pairs []Pair, multiple bool, err error) {
	if t.Empty() {
		return nil, false, ErrNoRows
	}
	if IsPairShaped(t) {
		return KeyValue(t), false, nil
	}
	r := pickIndex(t, nameAliases, name)
	row := t.Rows[r]
	pairs = make([]Pair, len(t.Columns))
	for i, col := range t.Columns {
		var v any
		if i < len(row) {
			v = row[i]
		}
		pairs[i] = Pair{Key: col, Value: Text(v)}
	}
	return pairs, t.Len() > 1, nil
}

// ScalarValue is a value read from the first row of a result.
type ScalarValue struct {
	Text string
	// Column is the column the value came from; empty on fallback.
	Column string
	// Row is the whole first row.
	Row map[string]any
	// Fallback is set when no alias matched and Row is the only answer.
	Fallback bool
}

// Scalar reads the first row's value under the first alias present. When
// none is present the whole row is returned with Fallback set instead of
// failing.
func Scalar(t *core.Table, aliases ...string) (ScalarValue, error) {
	if t.Empty() {
		return ScalarValue{}, ErrNoRows
	}
	row := t.Row(0)
	i, col, err := ResolveColumn(t, aliases...)
	if err != nil {
		return ScalarValue{Row: row, Fallback: true}, nil
	}
	var v any
	if i < len(t.Rows[0]) {
		v = t.Rows[0][i]
	}
	return ScalarValue{Text: Text(v), Column: col, Row: row}, nil
}

// Project keeps the listed columns that exist, in the listed order. Rows
// are copied. When no listed column exists t is returned unchanged.
func Project(t *core.Table, columns ...string) *core.Table {
	if t == nil {
		return &core.Table{}
	}
	var idx []int
	var names []string
	for _, c := range columns {
		if i, name, err := ResolveColumn(t, c); err == nil {
			idx = append(idx, i)
			names = append(names, name)
		}
	}
	if len(idx) == 0 {
		return t
	}
	out := &core.Table{Columns: names, Rows: make([][]any, 0, len(t.Rows))}
	for _, row := range t.Rows {
		projected := make([]any, len(idx))
		for j, i := range idx {
			if i < len(row) {
				projected[j] = row[i]
			}
		}
		out.Rows = append(out.Rows, projected)
	}
	return out
}

// Pair is one key/value entry of a describe result.
type Pair struct {
	Key   string
	Value string
}

var pairShapes = [][2]string{
	{"column", "value"},
	{"type", "value"},
	{"key", "value"},
}

// KeyValue flattens a describe result. Results shaped as column/value or
// Type/Value pairs become one Pair per row; a single wide row becomes one
// Pair per column; several wide rows are flattened with a row prefix.
func KeyValue(t *core.Table) []Pair {
	if t.Empty() {
		return nil
	}
	if ki, vi, ok := pairColumns(t); ok {
		out := make([]Pair, 0, t.Len())
		for _, row := range t.Rows {
			var k, v any
			if ki < len(row) {
				k = row[ki]
			}
			if vi < len(row) {
				v = row[vi]
			}
			out = append(out, Pair{Key: Text(k), Value: Text(v)})
		}
		return out
	}

	var out []Pair
	for r, row := range t.Rows {
		for i, col := range t.Columns {
			key := col
			if t.Len() > 1 {
				key = fmt.Sprintf("%d.%s", r+1, col)
			}
			var v any
			if i < len(row) {
				v = row[i]
			}
			out = append(out, Pair{Key: key, Value: Text(v)})
		}
	}
	return out
}

// IsPairShaped reports whether t is a two-column key/value listing such as
// column/value or Type/Value.
func IsPairShaped(t *core.Table) bool {
	_, _, ok := pairColumns(t)
	return ok
}

func pairColumns(t *core.Table) (ki, vi int, ok bool) {
	if t == nil || len(t.Columns) != 2 {
		return 0, 0, false
	}
	for _, shape := range pairShapes {
		k, _, kerr := ResolveColumn(t, shape[0])
		v, _, verr := ResolveColumn(t, shape[1])
		if kerr == nil && verr == nil {
			return k, v, true
		}
	}
	return 0, 0, false
}

// Lookup returns the value of key in pairs, case-insensitively.
func Lookup(pairs []Pair, key string) (string, bool) {
	for _, p := range pairs {
		if strings.EqualFold(p.Key, key) {
			return p.Value, true
		}
	}
	return "", false
}

// SortedKeys returns the keys of a row in order, for stable fallback output.
func SortedKeys(row map[string]any) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text renders a cell value for display. nil renders empty.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
