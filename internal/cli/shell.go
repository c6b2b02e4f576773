package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kleos-cli/kleos/internal/cli/commands"
	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
)

const shellPrompt = "kleos> "

// stdinIsTerminal reports whether stdin is interactive.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// inShellKey marks a context created by the shell.
type inShellKey struct{}

// sqlVerbs are the leading keywords sent to the server as raw SQL.
var sqlVerbs = map[string]bool{
	"SELECT": true, "SHOW": true, "DESCRIBE": true, "DESC": true, "EXPLAIN": true,
	"CREATE": true, "DROP": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"ALTER": true, "RETRAIN": true, "FINETUNE": true, "EVALUATE": true, "USE": true,
	"WITH": true,
}

// NewShellCommand creates the shell command.
func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Long: `Start an interactive shell that keeps one MindsDB session open.

Each line is either a kleos command (without the leading "kleos") or a SQL
statement starting with a keyword such as SELECT, SHOW or CREATE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd)
		},
	}
}

// shell executes lines against a shared session.
type shell struct {
	sess   *session.Session
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
	in     io.Reader

	// inherited holds persistent flags set when the shell started.
	inherited map[string]string
}

func runShell(cmd *cobra.Command) error {
	if _, nested := cmd.Context().Value(inShellKey{}).(bool); nested {
		return errors.New("already in the kleos shell")
	}

	cmdCtx, cleanup, err := commands.NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	sh := &shell{
		sess:      cmdCtx.Session,
		logger:    cmdCtx.Logger,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		in:        cmd.InOrStdin(),
		inherited: changedFlags(cmd.Root().PersistentFlags()),
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     historyPath(cmdCtx.Cfg),
		AutoComplete:    newCommandCompleter(cmd.Root()),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	ctx := cmd.Context()
	if sh.sess.Connect(ctx) {
		_, _ = fmt.Fprintf(sh.out, "Connected to %s (project %s)\n", cmdCtx.Cfg.ServerURL(), sh.sess.Project())
	} else {
		cmdCtx.Renderer.Warning(fmt.Sprintf("Not connected: %v", sh.sess.LastError()))
	}
	_, _ = fmt.Fprintln(sh.out, "Type .help for commands, exit to leave")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if sh.exec(ctx, line) {
			return nil
		}
	}
}

// exec handles one input line and reports whether the shell should exit.
// Errors are rendered, never returned.
func (sh *shell) exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch strings.ToLower(line) {
	case "exit", "quit", ".quit", ".exit":
		return true
	case "cls", ".clear":
		_, _ = fmt.Fprint(sh.out, "\033[H\033[2J")
		return false
	case ".help", "help":
		sh.printHelp()
		return false
	}

	if isSQL(line) {
		sh.runSQL(ctx, line)
		return false
	}

	args, err := shellwords.Parse(line)
	if err != nil {
		RenderError(sh.out, sh.errOut, fmt.Errorf("could not parse line: %w", err))
		return false
	}
	if len(args) > 0 && args[0] == "kleos" {
		args = args[1:]
	}
	sh.runCommand(ctx, args)
	return false
}

// runSQL sends a raw statement over the shared session.
func (sh *shell) runSQL(ctx context.Context, sql string) {
	r := sh.renderer()
	res := sh.sess.Run(ctx, strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	switch res.Kind {
	case core.ResultError:
		RenderError(sh.out, sh.errOut, res.Err)
	case core.ResultEmpty:
		if r.Structured() {
			_ = r.Table(res.Table)
			return
		}
		r.Info("Statement executed, no rows returned")
	default:
		if err := r.Table(res.Table); err != nil {
			RenderError(sh.out, sh.errOut, err)
		}
	}
}

// runCommand executes args on a fresh command tree bound to the shared
// session.
func (sh *shell) runCommand(ctx context.Context, args []string) {
	root := NewRootCmd()
	for name, value := range sh.inherited {
		_ = root.PersistentFlags().Set(name, value)
	}
	root.SetArgs(args)
	root.SetOut(sh.out)
	root.SetErr(sh.errOut)
	root.SetIn(sh.in)

	ctx = commands.WithSession(ctx, sh.sess)
	ctx = context.WithValue(ctx, inShellKey{}, true)
	ctx = context.WithValue(ctx, config.LoggerKey(), sh.logger)

	if err := root.ExecuteContext(ctx); err != nil {
		RenderError(sh.out, sh.errOut, err)
	}
}

func (sh *shell) renderer() *output.Renderer {
	mode := output.ModeAuto
	if cfg := config.GetCurrentConfig(); cfg != nil {
		if m, err := output.ParseMode(cfg.OutputFormat); err == nil {
			mode = m
		}
	}
	return output.NewRenderer(sh.out, sh.errOut, mode)
}

func (sh *shell) printHelp() {
	_, _ = fmt.Fprint(sh.out, `Shell commands:
  <command> [flags]   Run a kleos command, e.g. "kb list" or "job status refresh_hn"
  SELECT ...          Send a SQL statement (any line starting with a SQL keyword)
  help <command>      Show help for a command
  .help               Show this help
  cls, .clear         Clear the screen
  exit, quit, .quit   Leave the shell
`)
}

// isSQL reports whether line starts with a SQL keyword.
func isSQL(line string) bool {
	word, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	word = strings.TrimSuffix(word, ";")
	return sqlVerbs[strings.ToUpper(word)]
}

// changedFlags returns the flags explicitly set on fs.
func changedFlags(fs *pflag.FlagSet) map[string]string {
	set := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		set[f.Name] = f.Value.String()
	})
	return set
}

// historyPath returns the configured history file, else one in the user
// config directory. An empty path disables history.
func historyPath(cfg *config.Config) string {
	if cfg != nil && cfg.HistoryFile != "" {
		return cfg.HistoryFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "kleos")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// newCommandCompleter mirrors the command tree as a prefix completer.
func newCommandCompleter(root *cobra.Command) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(root.Commands())+4)
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "shell" || c.Name() == "completion" {
			continue
		}
		items = append(items, completerItem(c))
	}
	for _, word := range []string{"exit", "quit", ".help", ".clear"} {
		items = append(items, readline.PcItem(word))
	}
	return readline.NewPrefixCompleter(items...)
}

func completerItem(c *cobra.Command) readline.PrefixCompleterInterface {
	children := make([]readline.PrefixCompleterInterface, 0, len(c.Commands()))
	for _, sub := range c.Commands() {
		if sub.Hidden {
			continue
		}
		children = append(children, completerItem(sub))
	}
	return readline.PcItem(c.Name(), children...)
}
