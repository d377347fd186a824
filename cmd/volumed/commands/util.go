package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/marmos91/volumed/pkg/api"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/metrics"
	"github.com/marmos91/volumed/pkg/server"
)

// NewRegistry returns the registry of every built-in service profile.
func NewRegistry() (*server.Registry, error) {
	return server.NewRegistry(api.Profile(), metrics.Profile())
}

// GetDefaultStateDir returns the default state directory path.
func GetDefaultStateDir() string {
	if runtime.GOOS == "windows" {
		// On Windows, use %LOCALAPPDATA%\volumed
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData != "" {
			return filepath.Join(localAppData, config.ProjectName)
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), config.ProjectName)
		}
		return filepath.Join(homeDir, "AppData", "Local", config.ProjectName)
	}

	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), config.ProjectName)
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, config.ProjectName)
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), config.ProjectName+".pid")
}

func writePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// removePidFile removes path only if it still holds this process's PID, so
// a second instance that overwrote it keeps its file.
func removePidFile(path string) {
	pid, err := readPidFile(path)
	if err != nil || pid != os.Getpid() {
		return
	}
	_ = os.Remove(path)
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", string(data))
	}
	return pid, nil
}
