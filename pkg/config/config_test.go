package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCCPDConfig_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadCCPDConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.ListenAddress)
	assert.Equal(t, 5001, cfg.ListenPort)
	assert.Equal(t, "localhost", cfg.PublicHost)
	assert.Equal(t, cfg.ListenPort, cfg.PublicPort)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadCCPDConfig_FileValuesWinOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_port: 6001
public_host: carl.example.com
log_level: debug
cache_db_path: /var/lib/opendut/cache.db
`), 0o644))

	cfg, err := LoadCCPDConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.ListenPort)
	assert.Equal(t, 6001, cfg.PublicPort, "public port defaults to the listen port")
	assert.Equal(t, "carl.example.com", cfg.PublicHost)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/opendut/cache.db", cfg.CacheDBPath)
}

// TestLoadCCPDConfig_EnvOverridesFile covers the CCPD_LOG environment variable: it wins over
// both the default and any value the config file carries.
func TestLoadCCPDConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))
	t.Setenv("CCPD_LOG", "warn")

	cfg, err := LoadCCPDConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadECADConfig_Defaults(t *testing.T) {
	cfg, err := LoadECADConfig("")
	require.NoError(t, err)

	assert.Equal(t, 5001, cfg.CarlPort)
	assert.Equal(t, "0.0.0.0", cfg.HealthMeshBindAddress)
	assert.Equal(t, 7980, cfg.HealthMeshBindPort)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadECADConfig_EnvOverride(t *testing.T) {
	t.Setenv("ECAD_LOG", "debug")
	cfg, err := LoadECADConfig("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_MalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port: [not an int\n"), 0o644))

	_, err := LoadCCPDConfig(path)
	assert.Error(t, err)
}

func TestDurationOrDefault(t *testing.T) {
	assert.Equal(t, time.Minute, DurationOrDefault("", time.Minute))
	assert.Equal(t, time.Minute, DurationOrDefault("garbage", time.Minute))
	assert.Equal(t, 30*time.Second, DurationOrDefault("30s", time.Minute))
}
