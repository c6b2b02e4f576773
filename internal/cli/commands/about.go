package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/pkg/adapter"
)

const banner = `  _    _
 | | _| | ___  ___  ___
 | |/ / |/ _ \/ _ \/ __|
 |   <| |  __/ (_) \__ \
 |_|\_\_|\___|\___/|___/`

// NewAboutCommand creates the about command.
func NewAboutCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Show what kleos is",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := NewCommandContextWithoutSession(cmd).Renderer
			if r.Structured() {
				return r.Data(map[string]string{"name": "kleos", "version": version})
			}
			if r.EffectiveMode() == output.ModeText {
				r.Println(r.Styles().Header.Render(banner))
				r.Println()
			} else {
				r.Println(output.FormatHeader(1, "kleos "+version))
				r.Println()
			}
			r.Println("kleos drives a MindsDB server from the command line: knowledge bases,")
			r.Println("agents, models, and scheduled jobs over HackerNews and other datasources.")
			r.Println()
			r.Println(output.FormatKeyValue("version", version))
			r.Println(output.FormatKeyValue("transports", strings.Join(adapter.ListAdapters(), ", ")))
			return nil
		},
	}
}

// NewInfoCommand creates the info command.
func NewInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show connection details and whether the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			s := cmdCtx.Session
			if !s.Connected() {
				s.Connect(cmd.Context())
			}
			cfg := s.Config()
			project := s.Project()
			if project == "" {
				project = cfg.Project
			}
			connected := "yes"
			if !s.Connected() {
				connected = "no"
			}

			pairs := []output.KV{
				{Key: "server", Value: cmdCtx.Cfg.ServerURL()},
				{Key: "transport", Value: cfg.Type},
				{Key: "project", Value: project},
				{Key: "user", Value: cfg.Username},
				{Key: "connected", Value: connected},
			}
			if !s.Connected() && s.LastError() != nil {
				pairs = append(pairs, output.KV{Key: "error", Value: s.LastError().Error()})
			}
			if err := cmdCtx.Renderer.KeyValues("Connection", pairs); err != nil {
				return err
			}
			if !s.Connected() {
				return fmt.Errorf("server %s is not reachable", cmdCtx.Cfg.ServerURL())
			}
			return nil
		},
	}
}
