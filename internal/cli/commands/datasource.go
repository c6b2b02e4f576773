package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/hackernews"
	"github.com/kleos-cli/kleos/internal/normalize"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// SetupHackerNewsOptions holds options for the setup hackernews command.
type SetupHackerNewsOptions struct {
	Name string
}

// NewSetupCommand creates the setup command group.
func NewSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create datasources on the MindsDB server",
	}
	cmd.AddCommand(newSetupHackerNewsCommand(), newSetupDropCommand())
	return cmd
}

func newSetupHackerNewsCommand() *cobra.Command {
	opts := &SetupHackerNewsOptions{}

	cmd := &cobra.Command{
		Use:   "hackernews",
		Short: "Create the HackerNews datasource",
		Long: `Create the HackerNews datasource unless it already exists.

The command is safe to re-run: an existing datasource is left untouched.`,
		Example: `  # Create the default "hackernews" datasource
  kleos setup hackernews

  # Use a different datasource name
  kleos setup hackernews --name hn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupHackerNews(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Datasource name (default from config, hackernews)")

	return cmd
}

func runSetupHackerNews(cmd *cobra.Command, _ []string, opts *SetupHackerNewsOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	r := cmdCtx.Renderer
	name := cmdCtx.datasourceName(opts.Name)

	created, err := cmdCtx.ensureDatasource(ctx, name)
	if err != nil {
		return err
	}
	if !created {
		r.Info(fmt.Sprintf("Datasource %q already exists", name))
		return nil
	}

	t, err := cmdCtx.Session.Execute(ctx, mindsql.ShowDatabases())
	if err != nil {
		return fmt.Errorf("verify datasource: %w", err)
	}
	if !normalize.DatabaseExists(t, name) {
		return fmt.Errorf("datasource %q was not listed after creation", name)
	}
	r.Success(fmt.Sprintf("Datasource %q is ready", name))
	return nil
}

// datasourceName picks the HackerNews datasource: flag, then config.
func (c *CommandContext) datasourceName(flag string) string {
	switch {
	case flag != "":
		return flag
	case c.Cfg.HackerNews.Datasource != "":
		return c.Cfg.HackerNews.Datasource
	default:
		return hackernews.DefaultDatasource
	}
}

// ensureDatasource creates the HackerNews datasource unless SHOW DATABASES
// already lists it. It reports whether a CREATE was sent.
func (c *CommandContext) ensureDatasource(ctx context.Context, name string) (bool, error) {
	t, err := c.Session.Execute(ctx, mindsql.ShowDatabases())
	if err != nil {
		return false, fmt.Errorf("list databases: %w", err)
	}
	if normalize.DatabaseExists(t, name) {
		c.Logger.Debug("datasource present", "name", name)
		return false, nil
	}

	sql, err := hackernews.Datasource(name)
	if err != nil {
		return false, err
	}
	if _, err := c.execMasked(ctx, sql, session.IsAlreadyExists); err != nil {
		return false, fmt.Errorf("create datasource %q: %w", name, err)
	}
	return true, nil
}

func newSetupDropCommand() *cobra.Command {
	opts := &SetupHackerNewsOptions{}

	cmd := &cobra.Command{
		Use:   "drop-datasource",
		Short: "Drop the HackerNews datasource",
		Long: `Drop the HackerNews datasource. Knowledge bases already filled from it
keep their rows, but refresh jobs reading from it will fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			name := cmdCtx.datasourceName(opts.Name)
			outcome, err := cmdCtx.execMasked(cmd.Context(), mindsql.DropDatabase(name), session.IsNotFound)
			if err != nil {
				return err
			}
			return cmdCtx.reportOutcome("datasource", name, outcome, "dropped", "not found")
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Datasource name (default from config, hackernews)")

	return cmd
}
