package procenv

import (
	"net"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		opts, err := optionsFromLookup(DefaultEnvPrefix, envMap(nil))
		require.NoError(t, err)
		assert.Equal(t, Options{}, opts)
	})

	t.Run("AllSet", func(t *testing.T) {
		opts, err := optionsFromLookup(DefaultEnvPrefix, envMap(map[string]string{
			"VOLUMED_RUNTIME_PROCS":          "4",
			"VOLUMED_RUNTIME_MAX_THREADS":    "512",
			"VOLUMED_RUNTIME_EXEMPT_THREADS": "true",
			"VOLUMED_RUNTIME_CGO_RESOLVER":   "1",
		}))
		require.NoError(t, err)
		assert.Equal(t, Options{Procs: 4, MaxThreads: 512, ExemptThreads: true, CgoResolver: true}, opts)
	})

	t.Run("InvalidInteger", func(t *testing.T) {
		_, err := optionsFromLookup(DefaultEnvPrefix, envMap(map[string]string{"VOLUMED_RUNTIME_PROCS": "many"}))
		assert.ErrorIs(t, err, ErrInvalidOption)
	})

	t.Run("InvalidBool", func(t *testing.T) {
		_, err := optionsFromLookup(DefaultEnvPrefix, envMap(map[string]string{"VOLUMED_RUNTIME_CGO_RESOLVER": "maybe"}))
		assert.ErrorIs(t, err, ErrInvalidOption)
	})

	t.Run("ReadsProcessEnvironment", func(t *testing.T) {
		t.Setenv("TEST_RUNTIME_PROCS", "2")
		opts, err := OptionsFromEnv("TEST_RUNTIME_")
		require.NoError(t, err)
		assert.Equal(t, 2, opts.Procs)
	})
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, Options{}.Validate())
	assert.ErrorIs(t, Options{Procs: -1}.Validate(), ErrInvalidOption)
	assert.ErrorIs(t, Options{MaxThreads: 4}.Validate(), ErrInvalidOption)
}

func TestPrepare(t *testing.T) {
	t.Cleanup(ResetForTesting)

	t.Run("RequireFailsBeforePrepare", func(t *testing.T) {
		ResetForTesting()

		err := Require("server")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotPrepared)
		assert.Contains(t, err.Error(), "server")
	})

	t.Run("AppliesOnce", func(t *testing.T) {
		ResetForTesting()
		procs := runtime.GOMAXPROCS(0)

		require.NoError(t, Prepare(Options{Procs: procs}))
		assert.NoError(t, Require("server"))
		assert.True(t, net.DefaultResolver.PreferGo)

		s, ok := Snapshot()
		require.True(t, ok)
		assert.Equal(t, procs, s.Procs)
		assert.True(t, s.PureGoResolver)
		assert.False(t, s.PreparedAt.IsZero())

		assert.ErrorIs(t, Prepare(Options{}), ErrAlreadyPrepared)
	})

	t.Run("ExemptThreadsSkipsCeiling", func(t *testing.T) {
		ResetForTesting()

		require.NoError(t, Prepare(Options{MaxThreads: 10000, ExemptThreads: true, CgoResolver: true}))

		s, _ := Snapshot()
		assert.Zero(t, s.MaxThreads)
		assert.True(t, s.ExemptThreads)
		assert.False(t, net.DefaultResolver.PreferGo)
	})

	t.Run("InvalidOptionsLeaveRuntimeUnprepared", func(t *testing.T) {
		ResetForTesting()

		assert.ErrorIs(t, Prepare(Options{Procs: -2}), ErrInvalidOption)
		assert.False(t, Prepared())
	})
}
