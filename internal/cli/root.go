// Package cli provides the command-line interface for kleos.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/commands"
	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/internal/session"

	// Register transports via init()
	_ "github.com/kleos-cli/kleos/pkg/adapters/postgres"
	_ "github.com/kleos-cli/kleos/pkg/adapters/rest"
)

var (
	cfgFile     string
	profileFlag string
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// openSecretStore opens the keyring consulted for empty secrets.
var openSecretStore = config.OpenSecretStore

// closeLog flushes the log file opened by the last config load.
var closeLog = func() error { return nil }

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kleos",
		Short: "kleos - MindsDB from the command line",
		Long: `kleos drives a MindsDB server: knowledge bases over HackerNews and other
datasources, agents that answer from them, models, and scheduled jobs.
Reports measure knowledge base quality, speed, and behavior under load.

Run without a command on a terminal to start the interactive shell.`,
		Version: Version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			switch cmd.Name() {
			case "help", "completion", "__complete", "__completeNoDesc", "version":
				return nil
			}
			return loadRuntime(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !stdinIsTerminal() {
				return cmd.Help()
			}
			return runShell(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
MindsDB command-line client
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./kleos.yaml or <user config dir>/kleos/config.yaml)")
	pf.StringVar(&profileFlag, "profile", "", "Named connection profile from the config file")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json|yaml)")
	pf.Bool("verbose", false, "Verbose output (debug logging)")
	pf.String("host", "", "MindsDB host")
	pf.Int("port", 0, "MindsDB port (default 47334 for http, 55432 for postgres)")
	pf.String("user", "", "MindsDB user")
	pf.String("password", "", "MindsDB password")
	pf.String("project", "", "MindsDB project")
	pf.String("transport", "", "Transport to MindsDB (http|postgres)")
	pf.Duration("timeout", 0, "Request timeout (default 60s)")
	rootCmd.Flags().BoolP("version", "v", false, "version for kleos")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("transport", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"http", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewAboutCommand(Version))
	rootCmd.AddCommand(commands.NewInfoCommand())
	rootCmd.AddCommand(commands.NewSetupCommand())
	rootCmd.AddCommand(commands.NewKBCommand())
	rootCmd.AddCommand(commands.NewJobCommand())
	rootCmd.AddCommand(commands.NewAICommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(NewShellCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// loadRuntime loads config, sets up logging, and fills empty secrets from
// the keyring. The logger is stored in the command context.
func loadRuntime(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	if _, err := output.ParseMode(cfg.OutputFormat); err != nil {
		return err
	}

	_ = closeLog()
	logger, closer := config.SetupLogger(cmd.ErrOrStderr(), cfg.LogFile, config.LogLevel(cfg.Verbose))
	closeLog = closer

	if store, err := openSecretStore(); err != nil {
		logger.Debug("keyring unavailable", "error", err)
	} else if filled, err := cfg.ApplySecrets(store); err != nil {
		logger.Debug("keyring lookup failed", "error", err)
	} else if len(filled) > 0 {
		logger.Debug("secrets loaded from keyring", "keys", filled)
	}

	if file := config.GetConfigFileUsed(); file != "" {
		logger.Debug("using config file", "path", file)
	}

	ctx := context.WithValue(cmd.Context(), config.LoggerKey(), logger)
	cmd.SetContext(ctx)
	return nil
}

// Execute runs the root command with a signal-aware context and renders
// any error once.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = closeLog() }()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		RenderError(os.Stdout, os.Stderr, err)
		return err
	}
	return nil
}

// RenderError prints "Error: <message>" and, for failed statements, the
// statement in muted style.
func RenderError(out, errOut io.Writer, err error) {
	mode := output.ModeAuto
	if cfg := config.GetCurrentConfig(); cfg != nil {
		if m, perr := output.ParseMode(cfg.OutputFormat); perr == nil {
			mode = m
		}
	}
	r := output.NewRenderer(out, errOut, mode)

	if errors.Is(err, context.Canceled) {
		r.Error("interrupted")
		return
	}
	r.Error(err.Error())
	if stmt, ok := session.StatementOf(err); ok {
		r.Muted(stmt)
	}
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for kleos.

To load completions:

Bash:
  $ source <(kleos completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ kleos completion bash > /etc/bash_completion.d/kleos
  # macOS:
  $ kleos completion bash > $(brew --prefix)/etc/bash_completion.d/kleos

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ kleos completion zsh > "${fpath[1]}/_kleos"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ kleos completion fish | source

  # To load completions for each session, execute once:
  $ kleos completion fish > ~/.config/fish/completions/kleos.fish

PowerShell:
  PS> kleos completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> kleos completion powershell > kleos.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}

