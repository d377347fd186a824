package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/volumed/internal/bootstrap"
	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/volumed/pkg/metrics/prometheus"
)

var (
	strictConfig bool
	pidFile      string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the volumed server",
	Long: `Start the volumed server in the foreground.

Configuration is merged from defaults, the config file, VOLUMED_* environment
variables and the flags below, in increasing order of precedence. The server
runs until it receives SIGINT or SIGTERM, then drains open connections for at
most --grace-period.

Examples:
  # Start with the default config file
  volumed start

  # Start on a loopback ephemeral port
  volumed start --host 127.0.0.1 --port 0

  # Start with custom config file, rejecting unknown keys
  volumed start --config /etc/volumed/config.yaml --strict-config

  # Start with environment variable overrides
  VOLUMED_LOGGING_LEVEL=DEBUG volumed start`,
	RunE: runStart,
}

func init() {
	config.RegisterFlags(startCmd.Flags())
	startCmd.Flags().BoolVar(&strictConfig, "strict-config", false, "Reject config file keys that map to no option")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/volumed/volumed.pid)")
}

func runStart(cmd *cobra.Command, args []string) error {
	registry, err := NewRegistry()
	if err != nil {
		return err
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	seq := &bootstrap.Sequence{
		Project:  config.ProjectName,
		Version:  Version,
		Commit:   Commit,
		Registry: registry,
		ResolveConfig: func() (*config.Resolved, error) {
			r := &config.Resolver{ConfigFile: GetConfigFile(), Strict: strictConfig}
			return r.ResolveFlags(cmd.Flags(), config.ProjectName, Version)
		},
		Started: func([]*server.Instance) error {
			if err := writePidFile(pidPath); err != nil {
				return err
			}
			logger.Debug("PID file written", "path", pidPath)
			return nil
		},
	}

	defer removePidFile(pidPath)

	return seq.Run(cmd.Context())
}
