package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/volumed/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())

	reg := InitRegistry()
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
	assert.Same(t, reg, InitRegistry())
}

func TestHandler(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)
	InitRegistry()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfile(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Resolve([]string{"--metrics-port", "9191", "--grace-period", "3s"}, config.ProjectName, "")
	require.NoError(t, err)

	p := Profile()
	assert.Equal(t, ProfileName, p.Name)

	desc := p.Bind(cfg.Config())
	assert.Equal(t, "0.0.0.0", desc.Host)
	assert.Equal(t, 9191, desc.Port)
	assert.Equal(t, "3s", desc.GracePeriod.String())

	_, err = p.Build(cfg)
	assert.Error(t, err, "building without a registry must fail")

	InitRegistry()
	app, err := p.Build(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}

func TestNilHelpers(t *testing.T) {
	ObserveStage(nil, "config", 0, nil)
	RecordPatch(nil, "nofile-limit", "applied")
}
