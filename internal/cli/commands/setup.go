// Package commands implements the kleos subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Session  *session.Session
	Renderer *output.Renderer
}

// sessionKey stores the shared session in a command context.
type sessionKey struct{}

// WithSession returns ctx carrying s. Commands run under ctx reuse s
// instead of opening their own.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session carried by ctx, if any.
func SessionFrom(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)
	return s, ok && s != nil
}

// NewCommandContext creates a CommandContext with a session and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutSession(cmd)

	if s, ok := SessionFrom(cmd.Context()); ok {
		cmdCtx.Session = s
		return cmdCtx, func() {}, nil
	}

	if err := cmdCtx.Cfg.Validate(); err != nil {
		return nil, nil, err
	}
	s := session.New(cmdCtx.Cfg.AdapterConfig(), cmdCtx.Logger)
	cmdCtx.Session = s
	return cmdCtx, func() { _ = s.Close() }, nil
}

// NewCommandContextWithoutSession creates a CommandContext without a session.
// Useful for commands that don't talk to the server.
func NewCommandContextWithoutSession(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		mode = output.ModeAuto
	}
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise loads defaults
// and environment overrides.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return &config.Config{
			MindsDB:      config.MindsDBConfig{Host: config.DefaultHost, Project: config.DefaultProject, Transport: config.DefaultTransport},
			OutputFormat: config.DefaultOutput,
		}
	}
	return cfg
}

// run executes sql and folds the outcome into a Result.
func (c *CommandContext) run(ctx context.Context, sql string) core.Result {
	c.Logger.Debug("executing statement", "sql", sql)
	return c.Session.Run(ctx, sql)
}

// exec executes a statement whose rows are not displayed.
func (c *CommandContext) exec(ctx context.Context, sql string) error {
	_, err := c.Session.Execute(ctx, sql)
	return err
}

// Masking outcomes of an idempotent statement.
type maskOutcome int

const (
	outcomeDone maskOutcome = iota
	outcomeMasked
)

// execMasked runs a CREATE or DROP and treats server rejections matched
// by mask as success, since re-running them is expected. Connect and
// transport failures always surface.
func (c *CommandContext) execMasked(ctx context.Context, sql string, mask func(error) bool) (maskOutcome, error) {
	err := c.exec(ctx, sql)
	switch {
	case err == nil:
		return outcomeDone, nil
	case session.IsRejected(err) && mask(err):
		c.Logger.Info("statement already applied", "error", err)
		return outcomeMasked, nil
	default:
		return outcomeDone, err
	}
}

// project resolves the target project: an explicit flag, else the
// session's project, connecting first if needed.
func (c *CommandContext) project(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if !c.Session.Connected() {
		c.Session.Connect(ctx)
	}
	if p := c.Session.Project(); p != "" {
		return p, nil
	}
	cause := c.Session.LastError()
	if cause == nil {
		cause = session.ErrNotConnected
	}
	return "", fmt.Errorf("could not determine target project: %w", errors.Join(session.ErrNotConnected, cause))
}

// showTable renders a result, with a custom message when it has no rows.
func (c *CommandContext) showTable(res core.Result, empty string) error {
	switch res.Kind {
	case core.ResultError:
		return res.Err
	case core.ResultEmpty:
		if c.Renderer.Structured() {
			return c.Renderer.Table(res.Table)
		}
		c.Renderer.Warning(empty)
		return nil
	default:
		return c.Renderer.Table(res.Table)
	}
}

// reportOutcome prints the result of an idempotent statement. Structured
// modes get a status object on stdout.
func (c *CommandContext) reportOutcome(kind, name string, outcome maskOutcome, done, masked string) error {
	r := c.Renderer
	status := done
	if outcome == outcomeMasked {
		status = masked
	}
	if r.Structured() {
		return r.Data(map[string]string{"kind": kind, "name": name, "status": status})
	}
	msg := fmt.Sprintf("%s %q %s", output.TitleCase(kind), name, status)
	if outcome == outcomeMasked {
		r.Info(msg)
	} else {
		r.Success(msg)
	}
	return nil
}
