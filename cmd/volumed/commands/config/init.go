package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/internal/cli/prompt"
	"github.com/marmos91/volumed/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a configuration file holding every option at its default value.

By default, the configuration file is created at $XDG_CONFIG_HOME/volumed/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  volumed config init

  # Initialize with custom path
  volumed config init --config /etc/volumed/config.yaml

  # Overwrite an existing file without asking
  volumed config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path, _ := configPath(cmd)

	if _, err := os.Stat(path); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("%s exists. Overwrite", path), initForce)
		if errors.Is(err, prompt.ErrAborted) {
			return errors.New("aborted")
		}
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Keeping existing configuration")
			return nil
		}
	}

	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: volumed start")
	_, _ = fmt.Fprintf(out, "  3. Or specify custom config: volumed start --config %s\n", path)
	return nil
}
