package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dayplan/internal/ics"
	"dayplan/internal/tz"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// StorageConfig selects where day records and rules are kept.
type StorageConfig struct {
	// Backend is "file" (one JSON document per day under Dir) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`
	Dir     string `yaml:"dir" json:"dir"`
	// SQLitePath defaults to dayplan.db inside Dir.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

// ExportConfig controls the scheduled ICS publish. It is disabled while Path
// is empty.
type ExportConfig struct {
	Cron string `yaml:"cron" json:"cron"`
	Path string `yaml:"path" json:"path"`
	// Days is how many days of authored tasks, starting today, are exported,
	// at most ics.MaxDays.
	Days int `yaml:"days" json:"days"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that the viewer zone "local" stands for.
	// Empty means the zone of the host.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Timezones is the curated list of viewer zones offered next to "local".
	Timezones []string `yaml:"timezones" json:"timezones"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Export  ExportConfig  `yaml:"export" json:"export"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Listen:    "127.0.0.1:8080",
		Timezones: slices.Clone(tz.Curated),
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     "./data",
		},
		Export: ExportConfig{
			Cron: "*/30 * * * *",
			Days: 90,
		},
		LogLevel: "info",
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	c.Timezone = strings.TrimSpace(c.Timezone)
	if c.Timezones == nil {
		c.Timezones = slices.Clone(tz.Curated)
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		// Unknown value; fall back to plain files.
		c.Storage.Backend = BackendFile
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.Dir, "dayplan.db")
	}

	if c.Export.Cron == "" {
		c.Export.Cron = "*/30 * * * *"
	}
	if c.Export.Days <= 0 {
		c.Export.Days = 90
	}
	c.Export.Days = min(c.Export.Days, ics.MaxDays)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Environment overrides read by ApplyEnv.
const (
	EnvListen   = "DAYPLAN_LISTEN"
	EnvDataDir  = "DAYPLAN_DATA_DIR"
	EnvStorage  = "DAYPLAN_STORAGE"
	EnvTimezone = "DAYPLAN_TIMEZONE"
	EnvLogLevel = "DAYPLAN_LOG_LEVEL"
)

// ApplyEnv loads the given .env files (missing ones are skipped; variables
// already set in the process win) and applies DAYPLAN_* overrides.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		// The sqlite path follows the data dir unless set explicitly.
		if c.Storage.SQLitePath == filepath.Join(c.Storage.Dir, "dayplan.db") {
			c.Storage.SQLitePath = ""
		}
		c.Storage.Dir = v
	}
	if v := os.Getenv(EnvStorage); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file + rename, with 0600
// perms on the result and 0700 on a created parent directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dayplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
