package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/internal/testutil"
	"github.com/kleos-cli/kleos/pkg/core"
)

var legacyEnvNames = []string{
	"MINDSDB_HOST", "MINDSDB_PORT", "MINDSDB_USER", "MINDSDB_PASSWORD", "MINDSDB_PROJECT",
	"GOOGLE_GEMINI_API_KEY", "GOOGLE_MODEL", "OLLAMA_BASE_URL", "OLLAMA_EMBEDDING_MODEL", "OLLAMA_RERANKING_MODEL",
}

// harness runs commands against a scripted transport through a shared
// session, the way the shell does.
type harness struct {
	fake   *testutil.FakeAdapter
	sess   *session.Session
	cfg    *config.Config
	out    *bytes.Buffer
	errOut *bytes.Buffer
	in     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	for _, name := range legacyEnvNames {
		t.Setenv(name, "")
	}
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cfg, err := config.LoadConfig("", nil)
	require.NoError(t, err)

	prevTTY := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = prevTTY })

	fake := testutil.NewFakeAdapter()
	ac := core.AdapterConfig{Type: testutil.RegisterFake(t, fake), Project: "mindsdb"}
	sess := session.New(ac, testutil.NewTestLogger(t), session.WithRetryDelay(time.Millisecond))

	return &harness{fake: fake, sess: sess, cfg: cfg, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
}

// run executes args against a fresh command tree rooted at cmd.
func (h *harness) run(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	h.out.Reset()
	h.errOut.Reset()

	cmd.SetOut(h.out)
	cmd.SetErr(h.errOut)
	cmd.SetIn(strings.NewReader(h.in))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := WithSession(context.Background(), h.sess)
	ctx = context.WithValue(ctx, config.LoggerKey(), testutil.NewTestLogger(t))
	return cmd.ExecuteContext(ctx)
}

// output returns everything the command printed on both streams.
func (h *harness) output() string {
	return h.out.String() + h.errOut.String()
}

// statements returns the executed statements that contain match.
func (h *harness) statements(match string) []string {
	var out []string
	for _, q := range h.fake.Executed() {
		if strings.Contains(q, match) {
			out = append(out, q)
		}
	}
	return out
}

func databases(names ...string) *core.Table {
	rows := make([][]any, len(names))
	for i, n := range names {
		rows[i] = []any{n}
	}
	return testutil.NewTable([]string{"Database"}, rows...)
}
