// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/pkg/config"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage volumed configuration files.

Subcommands:
  init      Write a configuration file with the default values
  validate  Validate configuration file
  show      Display the effective configuration
  schema    Generate JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(schemaCmd)
}

// configPath returns the --config flag inherited from the root command, or
// the default location.
func configPath(cmd *cobra.Command) (path string, explicit bool) {
	path, _ = cmd.Flags().GetString("config")
	if path != "" {
		return path, true
	}
	return config.GetDefaultConfigPath(), false
}
