//go:build !windows && !plan9

package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/volumed/pkg/api"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"
)

var testSignal os.Signal = syscall.SIGUSR2

// TestSequence_VolumeAPIStopsOnSIGTERM boots the volume API on an ephemeral
// loopback port, checks it answers, then stops it with SIGTERM.
func TestSequence_VolumeAPIStopsOnSIGTERM(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	reg, err := server.NewRegistry(api.Profile())
	require.NoError(t, err)

	s := &Sequence{
		Project:        config.ProjectName,
		Version:        "1.2.3",
		Registry:       reg,
		PrepareRuntime: func() error { return nil },
		ResolveConfig: func() (*config.Resolved, error) {
			return config.Resolve([]string{"--host", "127.0.0.1", "--port", "0", "--profile", api.ProfileName}, config.ProjectName, "1.2.3")
		},
		SetupLogging: func(*config.Resolved) error { return nil },
	}

	var instances []*server.Instance
	s.Started = func(started []*server.Instance) error {
		instances = started
		resp, err := (&http.Client{Timeout: 2 * time.Second}).Get("http://" + started[0].Addr().String() + "/v1/version")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "1.2.3", body.Data["version"])

		return syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}

	start := time.Now()
	err = waitResult(t, runAsync(context.Background(), s))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, instances, 1)
	assert.Equal(t, server.StateStopped, instances[0].State())
}
