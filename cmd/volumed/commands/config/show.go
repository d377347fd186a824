package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/internal/cli/output"
	"github.com/marmos91/volumed/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective volumed configuration: defaults, the config file and
VOLUMED_* environment variables merged.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show effective config as YAML
  volumed config show

  # Show as JSON
  volumed config show --output json

  # Show specific config file
  volumed config show --config /etc/volumed/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		format = output.FormatYAML
	}

	return output.Print(cmd.OutOrStdout(), format, cfg)
}
