package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/volumed/internal/bootstrap"
	"github.com/marmos91/volumed/pkg/api"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/metrics"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestStartFlags(t *testing.T) {
	for _, opt := range config.Options() {
		if opt.Flag == "" {
			continue
		}
		assert.NotNil(t, startCmd.Flags().Lookup(opt.Flag), "missing flag --%s", opt.Flag)
	}
	assert.NotNil(t, startCmd.Flags().Lookup("strict-config"))
	assert.NotNil(t, startCmd.Flags().Lookup("pid-file"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestUnknownFlagIsConfigurationError(t *testing.T) {
	_, err := execute(t, "start", "--no-such-flag")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.Equal(t, bootstrap.ExitConfiguration, bootstrap.ExitCode(err))
}

func TestListProfiles(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	list := listProfiles(registry, *cfg)
	require.Len(t, list, 2)

	byName := map[string]ProfileInfo{}
	for _, p := range list {
		byName[p.Name] = p
	}

	apiProfile := byName[api.ProfileName]
	assert.True(t, apiProfile.Default)
	assert.Equal(t, "0.0.0.0:8776", apiProfile.Address)

	metricsProfile := byName[metrics.ProfileName]
	assert.False(t, metricsProfile.Default)
	assert.Equal(t, "0.0.0.0:9090", metricsProfile.Address)

	assert.Equal(t, []string{"NAME", "ADDRESS", "DEFAULT", "DESCRIPTION"}, list.Headers())
	assert.Len(t, list.Rows(), 2)
}

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "volumed.pid")

	require.NoError(t, writePidFile(path))
	pid, err := readPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	removePidFile(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPidFile_KeepsForeignPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volumed.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid()+1)), 0644))

	removePidFile(path)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStop_MissingPidFile(t *testing.T) {
	_, err := execute(t, "stop", "--pid-file", filepath.Join(t.TempDir(), "none.pid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PID file not found")
}

func TestDefaultPidFile(t *testing.T) {
	if os.Getenv("LOCALAPPDATA") != "" {
		t.Skip("windows layout")
	}
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "volumed", "volumed.pid"), GetDefaultPidFile())
}
