package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/internal/testutil"
	"github.com/kleos-cli/kleos/pkg/core"
)

func TestIsSQL(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"SELECT * FROM mindsdb.models", true},
		{"select 1;", true},
		{"SHOW DATABASES", true},
		{"show;", true},
		{"  describe model m1", true},
		{"kb list", false},
		{"job status refresh", false},
		{"selection", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, isSQL(tt.line))
		})
	}
}

func TestShell_ExitWords(t *testing.T) {
	sh, _, _, _ := newTestShell(t)
	ctx := context.Background()

	for _, line := range []string{"exit", "quit", ".quit", "EXIT"} {
		assert.True(t, sh.exec(ctx, line), line)
	}
	assert.False(t, sh.exec(ctx, "   "))
}

func TestShell_Help(t *testing.T) {
	sh, fake, out, _ := newTestShell(t)

	assert.False(t, sh.exec(context.Background(), ".help"))
	assert.Contains(t, out.String(), "Leave the shell")
	assert.Empty(t, fake.Executed())
}

func TestShell_SQLLine(t *testing.T) {
	sh, fake, out, _ := newTestShell(t)
	fake.On("SHOW DATABASES", testutil.NewTable([]string{"Database"}, []any{"hackernews"}), nil)

	assert.False(t, sh.exec(context.Background(), "SHOW DATABASES;"))
	assert.Equal(t, "SHOW DATABASES", fake.LastQuery())
	assert.Contains(t, out.String(), "hackernews")
}

func TestShell_SQLLineEmptyAndError(t *testing.T) {
	sh, fake, out, errOut := newTestShell(t)
	fake.On("DROP MODEL", nil, &core.ServerError{Message: "model m1 not found"})

	sh.exec(context.Background(), "CREATE DATABASE x")
	assert.Contains(t, out.String(), "no rows returned")

	assert.False(t, sh.exec(context.Background(), "DROP MODEL m1"))
	assert.Contains(t, errOut.String(), "model m1 not found")
	assert.Contains(t, errOut.String(), "DROP MODEL m1")
}

func TestShell_CommandLineSharesSession(t *testing.T) {
	sh, fake, out, _ := newTestShell(t)
	fake.On("jobs", testutil.NewTable([]string{"name", "query"}, []any{"refresh_hn", "INSERT INTO kb"}), nil)

	assert.False(t, sh.exec(context.Background(), "job list"))
	assert.False(t, sh.exec(context.Background(), "kleos job list"))

	assert.Contains(t, out.String(), "refresh_hn")
	assert.Equal(t, 1, fake.ConnectCalls, "session should be reused across lines")
	assert.Len(t, fake.Executed(), 2)
}

func TestShell_QuotedArguments(t *testing.T) {
	sh, fake, _, _ := newTestShell(t)
	fake.On("hn_kb", testutil.NewTable([]string{"chunk_content", "relevance"}, []any{"rust in production", 0.9}), nil)

	sh.exec(context.Background(), `kb query hn_kb "rust in production" --limit 3`)

	q := fake.LastQuery()
	assert.Contains(t, q, "'rust in production'")
	assert.Contains(t, q, "LIMIT 3")
}

func TestShell_ErrorsAreRenderedNotReturned(t *testing.T) {
	sh, _, _, errOut := newTestShell(t)

	assert.False(t, sh.exec(context.Background(), "job list --bogus"))
	assert.False(t, sh.exec(context.Background(), `kb query "unterminated`))
	assert.Contains(t, errOut.String(), "Error:")
}

func TestShell_NestedShellRefused(t *testing.T) {
	sh, _, _, errOut := newTestShell(t)

	sh.exec(context.Background(), "shell")
	assert.Contains(t, errOut.String(), "already in the kleos shell")
}

func TestShell_InheritedFlags(t *testing.T) {
	sh, _, out, _ := newTestShell(t)
	sh.inherited = map[string]string{"output": "json"}

	sh.exec(context.Background(), "config show")

	cfg := config.GetCurrentConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out.String()), "{"))
}

func TestNewCommandCompleter(t *testing.T) {
	root := NewRootCmd()
	pc := newCommandCompleter(root)

	names := map[string]bool{}
	for _, child := range pc.GetChildren() {
		names[strings.TrimSpace(string(child.GetName()))] = true
	}
	assert.True(t, names["kb"])
	assert.True(t, names["exit"])
	assert.False(t, names["shell"])
}
