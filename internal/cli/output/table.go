package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kleos-cli/kleos/pkg/core"
)

// KV is one displayed key/value pair.
type KV struct {
	Key   string
	Value string
}

// Table renders a result table: bordered on terminals, a pipe table in
// markdown, and a list of records in JSON or YAML.
func (r *Renderer) Table(t *core.Table) error {
	if t == nil {
		t = &core.Table{}
	}
	switch r.EffectiveMode() {
	case ModeJSON, ModeYAML:
		return r.Data(records(t))
	}

	if t.Empty() {
		r.Println("(0 rows)")
		return nil
	}

	tw := table.NewWriter()
	header := make(table.Row, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		out := make(table.Row, len(t.Columns))
		for i := range t.Columns {
			if i < len(row) {
				out[i] = FormatValue(row[i])
			}
		}
		tw.AppendRow(out)
	}

	if r.EffectiveMode() == ModeMarkdown {
		r.Println(tw.RenderMarkdown())
		r.Println()
	} else {
		tw.SetStyle(table.StyleLight)
		r.Println(tw.Render())
	}
	rows := "rows"
	if t.Len() == 1 {
		rows = "row"
	}
	r.Printf("(%d %s)\n", t.Len(), rows)
	return nil
}

// KeyValues renders ordered pairs under a title.
func (r *Renderer) KeyValues(title string, pairs []KV) error {
	switch r.EffectiveMode() {
	case ModeJSON, ModeYAML:
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			m[p.Key] = p.Value
		}
		return r.Data(m)
	case ModeMarkdown:
		if title != "" {
			r.Println(FormatHeader(2, title))
			r.Println()
		}
		for _, p := range pairs {
			r.Println(FormatKeyValue(p.Key, p.Value))
		}
		return nil
	}

	if title != "" {
		r.Header(2, title)
	}
	width := 0
	for _, p := range pairs {
		width = max(width, len(p.Key))
	}
	for _, p := range pairs {
		r.Printf("  %s  %s\n", r.styles.Key.Render(fmt.Sprintf("%-*s", width, p.Key)), p.Value)
	}
	return nil
}

// Text renders a free-text answer. Structured modes wrap it in an object
// under key.
func (r *Renderer) Text(key, text string) error {
	if r.Structured() {
		return r.Data(map[string]string{key: text})
	}
	r.Println(strings.TrimRight(text, "\n"))
	return nil
}

func records(t *core.Table) []map[string]any {
	out := t.Records()
	for _, rec := range out {
		for k, v := range rec {
			rec[k] = plainValue(v)
		}
	}
	return out
}

// plainValue converts values that encoders would render awkwardly.
func plainValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return v
	}
}

// FormatValue renders a cell for display. NULL is shown explicitly.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}
