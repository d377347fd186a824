package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/internal/cli/output"
	"github.com/marmos91/volumed/pkg/config"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the volumed configuration file.

Checks for syntax errors, missing required fields, and invalid values. The
environment is applied on top of the file, exactly as volumed start does.

Examples:
  # Validate default config
  volumed config validate

  # Validate specific config file, rejecting unknown keys
  volumed config validate --config /etc/volumed/config.yaml --strict`,
	RunE: runConfigValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Reject keys that map to no option")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path, explicit := configPath(cmd)

	file := ""
	if explicit {
		file = path
	}
	resolved, err := (&config.Resolver{ConfigFile: file, Strict: validateStrict}).ResolveFlags(nil, config.ProjectName, "")
	if err != nil {
		return err
	}
	cfg := resolved.Config()

	var warnings []string
	if resolved.ConfigFile() == "" {
		warnings = append(warnings, "No configuration file found, defaults are in effect")
	}
	if cfg.Volume.DataPath != "" {
		if _, err := os.Stat(cfg.Volume.DataPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("Volume data path is not accessible: %v", err))
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		warnings = append(warnings, "Metrics and server share a port")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	return output.KeyValues(out, [][2]string{
		{"Profile", cfg.Server.Profile},
		{"Listen", cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)},
		{"Grace period", cfg.Server.GracePeriod.String()},
		{"Log level", cfg.Logging.Level},
		{"Metrics", strconv.FormatBool(cfg.Metrics.Enabled)},
		{"Volume backend", cfg.Volume.BackendName},
	})
}
