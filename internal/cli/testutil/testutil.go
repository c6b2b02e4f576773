// Package testutil captures renderer output for command and output tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleos-cli/kleos/internal/cli/output"
)

// TestRenderer is a Renderer writing into buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer returns a renderer for mode. isTTY simulates a terminal.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererAuto returns an auto-mode renderer without a terminal,
// which resolves to markdown.
func NewTestRendererAuto() *TestRenderer { return NewTestRenderer(output.ModeAuto, false) }

// NewTestRendererText returns a text-mode renderer on a simulated terminal.
func NewTestRendererText() *TestRenderer { return NewTestRenderer(output.ModeText, true) }

// NewTestRendererMarkdown returns a markdown renderer.
func NewTestRendererMarkdown() *TestRenderer { return NewTestRenderer(output.ModeMarkdown, false) }

// NewTestRendererJSON returns a JSON renderer.
func NewTestRendererJSON() *TestRenderer { return NewTestRenderer(output.ModeJSON, false) }

// NewTestRendererYAML returns a YAML renderer.
func NewTestRendererYAML() *TestRenderer { return NewTestRenderer(output.ModeYAML, false) }

// Output returns what was written to stdout.
func (tr *TestRenderer) Output() string { return tr.Out.String() }

// ErrorOutput returns what was written to stderr.
func (tr *TestRenderer) ErrorOutput() string { return tr.ErrOut.String() }

// Reset clears both buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// Records decodes JSON table output into one map per row.
func (tr *TestRenderer) Records(t *testing.T) []map[string]any {
	t.Helper()
	var rows []map[string]any
	dec := json.NewDecoder(strings.NewReader(tr.Output()))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&rows), "stdout is not a JSON record list: %q", tr.Output())
	return rows
}

var (
	ansiPattern   = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	footerPattern = regexp.MustCompile(`\((\d+) rows?\)`)
)

// AssertNoANSI fails when s carries terminal escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	assert.False(t, ansiPattern.MatchString(s), "unexpected ANSI escape codes in %q", s)
}

// AssertContains fails when s lacks want.
func AssertContains(t *testing.T, s, want string) {
	t.Helper()
	assert.Contains(t, s, want)
}

// AssertNotContains fails when s has unwanted.
func AssertNotContains(t *testing.T, s, unwanted string) {
	t.Helper()
	assert.NotContains(t, s, unwanted)
}

// AssertRowCount checks the "(N rows)" footer printed under text and
// markdown tables.
func AssertRowCount(t *testing.T, s string, n int) {
	t.Helper()
	m := footerPattern.FindStringSubmatch(s)
	require.NotNil(t, m, "no row footer in %q", s)
	assert.Equal(t, fmt.Sprint(n), m[1])
}

// AssertValidMarkdown checks fences are balanced and headers have titles.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()
	assert.Zero(t, strings.Count(md, "```")%2, "unbalanced code fences")
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			assert.NotEmpty(t, strings.TrimLeft(trimmed, "# "), "empty header at line %d", i+1)
		}
	}
}

// AssertOutputMode checks that modes meant for pipes stay free of escape
// codes on both streams.
func AssertOutputMode(t *testing.T, tr *TestRenderer, mode output.OutputMode) {
	t.Helper()
	switch mode {
	case output.ModeMarkdown, output.ModeJSON, output.ModeYAML:
		AssertNoANSI(t, tr.Output()+tr.ErrorOutput())
	}
}
