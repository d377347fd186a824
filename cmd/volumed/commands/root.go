// Package commands implements the volumed command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/cmd/volumed/commands/config"
	pkgconfig "github.com/marmos91/volumed/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "volumed",
	Short: "volumed - volume API service",
	Long: `volumed boots the volume API service: it prepares the runtime, resolves
configuration, starts logging, constructs the configured service profile and
serves it until SIGINT or SIGTERM.

Use "volumed [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/volumed/config.yaml)")

	// Bad flags are configuration errors so they map to the configuration exit code.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return pkgconfig.FlagError(err)
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(config.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
