package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errProcessDone = errors.New("process already finished")

var (
	stopPidFile string
	stopForce   bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the volumed server",
	Long: `Stop a running volumed server.

By default, sends SIGTERM for graceful shutdown. Use --force for immediate
termination with SIGKILL.

Examples:
  # Stop server (uses default PID file)
  volumed stop

  # Stop server using custom PID file
  volumed stop --pid-file /var/run/volumed.pid

  # Force stop (SIGKILL)
  volumed stop --force`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/volumed/volumed.pid)")
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Force kill (SIGKILL) instead of graceful shutdown (SIGTERM)")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pid, err := readPidFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PID file not found: %s\n\nIs the server running?", pidPath)
		}
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	out := cmd.OutOrStdout()
	err = stopProcess(process, pid, stopForce)
	if errors.Is(err, errProcessDone) {
		_, _ = fmt.Fprintln(out, "Server already stopped")
		_ = os.Remove(pidPath)
		return nil
	}
	if err != nil {
		return err
	}

	if stopForce {
		_, _ = fmt.Fprintln(out, "Server terminated")
	} else {
		_, _ = fmt.Fprintln(out, "Shutdown signal sent. Server will stop gracefully.")
	}
	return nil
}
