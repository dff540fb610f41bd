package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/ics"
	"dayplan/internal/tz"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join("data", "dayplan.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, tz.Curated, cfg.Timezones)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: " Asia/Tokyo "
storage:
  backend: postgres
  dir: /var/lib/dayplan
export:
  path: /srv/www/plan.ics
basic_auth:
  username: me
  password: secret
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/dayplan/dayplan.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "/srv/www/plan.ics", cfg.Export.Path)
	assert.Equal(t, "*/30 * * * *", cfg.Export.Cron)
	assert.Equal(t, 90, cfg.Export.Days)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "me", cfg.BasicAuth.Username)
}

func TestNormalizeCapsExportDays(t *testing.T) {
	cfg := &Config{Export: ExportConfig{Days: 1000}}
	cfg.Normalize()
	assert.Equal(t, ics.MaxDays, cfg.Export.Days)

	cfg.Export.Days = 366
	cfg.Normalize()
	assert.Equal(t, 366, cfg.Export.Days)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvListen, ":9090")
	t.Setenv(EnvDataDir, "/tmp/plans")
	t.Setenv(EnvStorage, "SQLITE")
	t.Setenv(EnvTimezone, "")

	// Values from the .env file only fill variables that are unset.
	t.Setenv(EnvLogLevel, "")
	require.NoError(t, os.Unsetenv(EnvLogLevel))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DAYPLAN_LOG_LEVEL=debug\nDAYPLAN_LISTEN=:1111\n"), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(envFile, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/tmp/plans", cfg.Storage.Dir)
	assert.Equal(t, "/tmp/plans/dayplan.db", cfg.Storage.SQLitePath)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "", cfg.Timezone)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Paris"
	cfg.Timezones = []string{"UTC"}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	assert.Error(t, Save(path, nil))
}
