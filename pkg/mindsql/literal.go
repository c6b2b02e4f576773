// Package mindsql builds MindsDB SQL statements from typed parameters.
//
// Every builder is a pure function: it validates its input, serializes
// values with the literal helpers in this file, and returns SQL text. No
// builder touches the network.
package mindsql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyList is returned when a required list option has no elements.
var ErrEmptyList = errors.New("list must contain at least one value")

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Quote renders s as a single-quoted SQL string, doubling embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TripleQuote renders multi-line free text so quotes and newlines survive.
// Text containing ''' or ending in a quote falls back to Quote, since
// either would close the literal early.
func TripleQuote(s string) string {
	if strings.Contains(s, "'''") || strings.HasSuffix(s, "'") {
		return Quote(s)
	}
	return "'''" + s + "'''"
}

// Ident renders a possibly dotted identifier. Parts that are not plain
// identifiers are wrapped in backticks.
func Ident(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if !plainIdent.MatchString(p) {
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		}
	}
	return strings.Join(parts, ".")
}

// Qualified renders project.name unless name is already qualified or
// project is empty.
func Qualified(project, name string) string {
	if project == "" || strings.Contains(name, ".") {
		return Ident(name)
	}
	return Ident(project) + "." + Ident(name)
}

// TrimBaseURL strips trailing slashes from a base URL.
func TrimBaseURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// StringOrList renders a list option the way MindsDB's grammar expects:
// a single value as a bare quoted string, several as a bracketed array in
// input order. Blank entries are ignored.
func StringOrList(values []string) (string, error) {
	var kept []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	switch len(kept) {
	case 0:
		return "", ErrEmptyList
	case 1:
		return Quote(kept[0]), nil
	}
	quoted := make([]string, len(kept))
	for i, v := range kept {
		quoted[i] = Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]", nil
}

// SplitList splits a comma-separated flag value, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Field is one key of an object literal.
type Field struct {
	Key   string
	Value any
}

// Object renders an ordered brace literal with double-quoted keys, e.g.
// {"provider": "ollama", "model_name": "nomic-embed-text"}.
func Object(fields ...Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = jsonString(f.Key) + ": " + objectValue(f.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func objectValue(v any) string {
	switch x := v.(type) {
	case string:
		return jsonString(x)
	case nil:
		return "null"
	default:
		return scalarOrJSON(v)
	}
}

// Value renders an option value: strings quoted, numbers and booleans bare,
// maps and slices as JSON.
func Value(v any) string {
	switch x := v.(type) {
	case string:
		return Quote(x)
	case nil:
		return "NULL"
	default:
		return scalarOrJSON(x)
	}
}

func scalarOrJSON(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return Quote(fmt.Sprint(v))
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
}

func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// CoerceScalar turns a flag string into a bool or number when it parses
// as one, so engine parameters like max_tokens=100 are emitted bare.
func CoerceScalar(s string) any {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Option is one `key = value` entry of a USING clause.
type Option struct {
	Key   string
	Value string
}

// SortedOptions renders free-form parameters as USING options in key order.
func SortedOptions(params map[string]any) []Option {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Option, 0, len(keys))
	for _, k := range keys {
		out = append(out, Option{Key: k, Value: Value(params[k])})
	}
	return out
}

// usingClause renders USING with one option per line.
func usingClause(opts []Option) string {
	if len(opts) == 0 {
		return ""
	}
	lines := make([]string, len(opts))
	for i, o := range opts {
		lines[i] = "    " + o.Key + " = " + o.Value
	}
	return "\nUSING\n" + strings.Join(lines, ",\n")
}
