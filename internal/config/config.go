package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"workcal/internal/model"
	"workcal/internal/permission"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SnapshotConfig controls the periodic iCalendar snapshot of the event
// set.
type SnapshotConfig struct {
	// Path is where the .ics snapshot is written. Empty disables snapshots.
	Path string `yaml:"path" json:"path"`
	// Cron is a standard 5-field cron schedule evaluated in Timezone.
	Cron string `yaml:"cron" json:"cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone of the workspace (e.g. "Asia/Seoul").
	// Day boundaries, week starts and day keys are computed in it.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WorkspaceID and UserID are stamped on events created through this
	// process.
	WorkspaceID string `yaml:"workspace_id" json:"workspace_id"`
	UserID      string `yaml:"user_id" json:"user_id"`

	// Role is used for requests that carry no role header.
	Role string `yaml:"role" json:"role"`

	// DefaultView is the initial view mode: day, week, month or agenda.
	DefaultView string `yaml:"default_view" json:"default_view"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// StorePath is the SQLite database holding events. Empty keeps events
	// in memory only.
	StorePath string `yaml:"store_path" json:"store_path"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		WorkspaceID: "default",
		UserID:      "current-user",
		Role:        string(permission.RoleMember),
		DefaultView: string(model.ViewMonth),
		LogLevel:    "info",
		LogFormat:   "text",
		Snapshot: SnapshotConfig{
			Cron: "*/15 * * * *",
		},
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.WorkspaceID == "" {
		c.WorkspaceID = d.WorkspaceID
	}
	if c.UserID == "" {
		c.UserID = d.UserID
	}
	// Unknown roles are left as written; Validate rejects them.
	if c.Role == "" {
		c.Role = d.Role
	} else if r, err := permission.ParseRole(c.Role); err == nil {
		c.Role = string(r)
	}
	c.DefaultView = strings.ToLower(strings.TrimSpace(c.DefaultView))
	if !model.ViewMode(c.DefaultView).Valid() {
		c.DefaultView = d.DefaultView
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.Snapshot.Cron == "" {
		c.Snapshot.Cron = d.Snapshot.Cron
	}
}

// Validate reports settings that cannot be defaulted. An unknown role is
// an error wrapping permission.ErrUnknownRole.
func (c *Config) Validate() error {
	if _, err := permission.ParseRole(c.Role); err != nil {
		return fmt.Errorf("config role: %w", err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 permissions and returned.
//   - Otherwise the YAML is read, unmarshaled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
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
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes cfg to path as YAML, atomically, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file in path's directory and
// renames it over path, creating the directory (0700) if needed.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".workcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// envOverrides lists the environment variables that override file values.
type envOverrides struct {
	Listen            string `env:"WORKCAL_LISTEN"`
	Timezone          string `env:"WORKCAL_TIMEZONE"`
	WorkspaceID       string `env:"WORKCAL_WORKSPACE_ID"`
	UserID            string `env:"WORKCAL_USER_ID"`
	Role              string `env:"WORKCAL_ROLE"`
	DefaultView       string `env:"WORKCAL_DEFAULT_VIEW"`
	LogLevel          string `env:"WORKCAL_LOG_LEVEL"`
	LogFormat         string `env:"WORKCAL_LOG_FORMAT"`
	StorePath         string `env:"WORKCAL_STORE_PATH"`
	SnapshotPath      string `env:"WORKCAL_SNAPSHOT_PATH"`
	SnapshotCron      string `env:"WORKCAL_SNAPSHOT_CRON"`
	BasicAuthUsername string `env:"WORKCAL_BASIC_AUTH_USERNAME"`
	BasicAuthPassword string `env:"WORKCAL_BASIC_AUTH_PASSWORD"`
}

// ApplyEnv overrides c with any WORKCAL_* environment variables that are
// set, then normalizes and validates. Setting both basic auth variables enables basic
// auth.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Listen, o.Listen)
	set(&c.Timezone, o.Timezone)
	set(&c.WorkspaceID, o.WorkspaceID)
	set(&c.UserID, o.UserID)
	set(&c.Role, o.Role)
	set(&c.DefaultView, o.DefaultView)
	set(&c.LogLevel, o.LogLevel)
	set(&c.LogFormat, o.LogFormat)
	set(&c.StorePath, o.StorePath)
	set(&c.Snapshot.Path, o.SnapshotPath)
	set(&c.Snapshot.Cron, o.SnapshotCron)
	if o.BasicAuthUsername != "" && o.BasicAuthPassword != "" {
		c.BasicAuth = &BasicAuthConfig{Username: o.BasicAuthUsername, Password: o.BasicAuthPassword}
	}

	c.Normalize()
	return c.Validate()
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
