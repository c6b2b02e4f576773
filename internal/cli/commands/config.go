package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kleos-cli/kleos/internal/cli/config"
	"github.com/kleos-cli/kleos/internal/cli/output"
)

// openSecretStore opens the keyring used by the secret commands.
var openSecretStore = config.OpenSecretStore

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration and manage stored secrets",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigSetSecretCommand(), newConfigDeleteSecretCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutSession(cmd)
			return cmdCtx.Renderer.KeyValues("Configuration", configPairs(cmdCtx.Cfg.Masked(), config.GetConfigFileUsed()))
		},
	}
}

// configPairs flattens the config for display in key order of the file.
func configPairs(c config.Config, file string) []output.KV {
	if file == "" {
		file = "(none)"
	}
	timeout := ""
	if c.MindsDB.Timeout > 0 {
		timeout = c.MindsDB.Timeout.String()
	}
	port := ""
	if c.MindsDB.Port > 0 {
		port = strconv.Itoa(c.MindsDB.Port)
	}
	pairs := []output.KV{
		{Key: "config_file", Value: file},
		{Key: "profile", Value: c.Profile},
		{Key: "mindsdb.host", Value: c.MindsDB.Host},
		{Key: "mindsdb.port", Value: port},
		{Key: "mindsdb.user", Value: c.MindsDB.User},
		{Key: "mindsdb.password", Value: c.MindsDB.Password},
		{Key: "mindsdb.project", Value: c.MindsDB.Project},
		{Key: "mindsdb.transport", Value: c.MindsDB.Transport},
		{Key: "mindsdb.timeout", Value: timeout},
		{Key: "mindsdb.sslmode", Value: c.MindsDB.SSLMode},
		{Key: "server_url", Value: c.ServerURL()},
	}
	for _, m := range []struct {
		prefix string
		cfg    config.ModelConfig
	}{{"embedding", c.Embedding}, {"reranking", c.Reranking}, {"llm", c.LLM}} {
		pairs = append(pairs,
			output.KV{Key: m.prefix + ".provider", Value: m.cfg.Provider},
			output.KV{Key: m.prefix + ".model", Value: m.cfg.Model},
			output.KV{Key: m.prefix + ".base_url", Value: m.cfg.BaseURL},
			output.KV{Key: m.prefix + ".api_key", Value: m.cfg.APIKey},
		)
	}
	return append(pairs,
		output.KV{Key: "hackernews.datasource", Value: c.HackerNews.Datasource},
		output.KV{Key: "output", Value: c.OutputFormat},
		output.KV{Key: "verbose", Value: strconv.FormatBool(c.Verbose)},
		output.KV{Key: "log_file", Value: c.LogFile},
		output.KV{Key: "history_file", Value: c.HistoryFile},
	)
}

func secretKeyArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	for _, k := range config.SecretKeys {
		if args[0] == k {
			return nil
		}
	}
	return fmt.Errorf("%q is not a secret key (one of: %s)", args[0], strings.Join(config.SecretKeys, ", "))
}

func newConfigSetSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret <key>",
		Short: "Store a secret in the OS keyring",
		Long: `Store an API key or the MindsDB password in the OS keyring.

The value is read from the terminal without echo, or from stdin when piped.
Stored secrets are used when the config file and environment leave them empty.

Keys: ` + strings.Join(config.SecretKeys, ", "),
		Example: `  kleos config set-secret llm.api_key

  echo "$OPENAI_API_KEY" | kleos config set-secret embedding.api_key`,
		Args:      secretKeyArg,
		ValidArgs: config.SecretKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutSession(cmd)
			value, err := readSecret(cmd, args[0])
			if err != nil {
				return err
			}
			if value == "" {
				return errors.New("empty secret, nothing stored")
			}
			store, err := openSecretStore()
			if err != nil {
				return err
			}
			if err := store.Set(args[0], value); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Stored %s in the keyring", args[0]))
			return nil
		},
	}
}

// readSecret prompts without echo on a terminal and reads one line
// otherwise.
func readSecret(cmd *cobra.Command, key string) (string, error) {
	if stdinIsTerminal() {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", key)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

func newConfigDeleteSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "delete-secret <key>",
		Short:     "Remove a secret from the OS keyring",
		Args:      secretKeyArg,
		ValidArgs: config.SecretKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutSession(cmd)
			store, err := openSecretStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Removed %s from the keyring", args[0]))
			return nil
		},
	}
}
