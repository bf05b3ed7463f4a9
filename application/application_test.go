package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lk2023060901/serialkit/pkg/log"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "serialkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitWithoutConfig(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("SERIALKIT_LOG_ENABLE", "")

	app := New()
	require.NoError(t, app.Init(""))
	assert.Nil(t, app.Config())
	assert.Empty(t, app.ConfigPath())
	assert.Equal(t, zap.ErrorLevel, log.Level().Level())
	assert.Same(t, log.L(), app.Logger("serialfmt").Logger)
}

func TestInitFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("SERIALKIT_LOG_ENABLE", "true")
	t.Setenv("SERIALKIT_LOG_LEVEL", "debug")

	require.NoError(t, New().Init(""))
	assert.Equal(t, zap.DebugLevel, log.Level().Level())
}

func TestInitFromFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: warn
  format: json
logging:
  serialfmt:
    level: debug
json:
  prettyPrint: true
`)
	t.Setenv(EnvConfigPath, path)
	t.Setenv("SERIALKIT_LOG_ENABLE", "")

	app := New()
	require.NoError(t, app.Init(""))
	assert.Equal(t, path, app.ConfigPath())
	require.NotNil(t, app.Config())
	assert.True(t, app.Config().IsSet("json.prettyPrint"))
	assert.Equal(t, zap.WarnLevel, log.Level().Level())

	lg := app.Logger("serialfmt")
	assert.NotSame(t, log.L(), lg.Logger)
	assert.True(t, lg.Core().Enabled(zap.DebugLevel))
	assert.Same(t, log.L(), app.Logger("unknown").Logger)
}

func TestInitErrors(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	assert.Error(t, New().Init(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, New().Init(writeConfig(t, "log:\n  level: loud\n")))
}
