package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/output"
)

// VersionInfo is the structured form of the version command.
type VersionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

// NewVersionCommand creates the version command. It runs without loading
// config, so only an explicit --output selects structured output.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display kleos version and build information.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := VersionInfo{
				Version:  version,
				Go:       runtime.Version(),
				Platform: runtime.GOOS + "/" + runtime.GOARCH,
			}

			mode := output.ModeText
			if f := cmd.Flag("output"); f != nil && f.Changed {
				m, err := output.ParseMode(f.Value.String())
				if err != nil {
					return err
				}
				mode = m
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			if r.Structured() {
				return r.Data(info)
			}

			r.Printf("kleos v%s\n", info.Version)
			r.Printf("MindsDB command-line client (%s, %s)\n", info.Go, info.Platform)
			return nil
		},
	}
}

