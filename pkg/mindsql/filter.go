package mindsql

import (
	"fmt"
	"sort"
	"strings"
)

// FilterError reports a metadata filter that cannot be compiled.
type FilterError struct {
	Column string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("metadata filter on %q: %s", e.Column, e.Reason)
}

var filterOps = map[string]string{
	"$eq":  "=",
	"$ne":  "!=",
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
	"$in":  "IN",
	"$nin": "NOT IN",
}

// CompileFilter turns a decoded JSON metadata filter into WHERE fragments.
// A scalar value means equality; an object maps operators to operands:
//
//	{"author": "pg"}            -> author = 'pg'
//	{"score": {"$gt": 50}}      -> score > 50
//	{"type": {"$in": ["a"]}}    -> type IN ('a')
//
// Columns are emitted in key order, operators likewise.
func CompileFilter(filter map[string]any) ([]string, error) {
	cols := make([]string, 0, len(filter))
	for k := range filter {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	var out []string
	for _, col := range cols {
		if strings.TrimSpace(col) == "" {
			return nil, &FilterError{Column: col, Reason: "empty column name"}
		}
		ops, ok := filter[col].(map[string]any)
		if !ok {
			frag, err := compare(col, "=", filter[col])
			if err != nil {
				return nil, err
			}
			out = append(out, frag)
			continue
		}
		if len(ops) == 0 {
			return nil, &FilterError{Column: col, Reason: "empty operator object"}
		}

		names := make([]string, 0, len(ops))
		for op := range ops {
			names = append(names, op)
		}
		sort.Strings(names)
		for _, op := range names {
			sqlOp, known := filterOps[op]
			if !known {
				return nil, &FilterError{Column: col, Reason: fmt.Sprintf("unsupported operator %q", op)}
			}
			frag, err := compare(col, sqlOp, ops[op])
			if err != nil {
				return nil, err
			}
			out = append(out, frag)
		}
	}
	return out, nil
}

func compare(col, op string, v any) (string, error) {
	lhs := Ident(col)
	if op == "IN" || op == "NOT IN" {
		items, ok := v.([]any)
		if !ok || len(items) == 0 {
			return "", &FilterError{Column: col, Reason: op + " needs a non-empty list"}
		}
		vals := make([]string, len(items))
		for i, item := range items {
			s, err := operand(col, item)
			if err != nil {
				return "", err
			}
			vals[i] = s
		}
		return fmt.Sprintf("%s %s (%s)", lhs, op, strings.Join(vals, ", ")), nil
	}

	if v == nil {
		switch op {
		case "=":
			return lhs + " IS NULL", nil
		case "!=":
			return lhs + " IS NOT NULL", nil
		}
		return "", &FilterError{Column: col, Reason: "null is only comparable with $eq or $ne"}
	}
	s, err := operand(col, v)
	if err != nil {
		return "", err
	}
	return lhs + " " + op + " " + s, nil
}

func operand(col string, v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		return "", &FilterError{Column: col, Reason: "nested values are not supported"}
	}
	return Value(v), nil
}
