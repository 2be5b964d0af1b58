package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/coffeestaff/portal/internal/objects"
)

// CLI holds the portalctl configuration. Values come from the YAML file,
// then PORTAL_* environment variables, then flags.
type CLI struct {
	BackendURL string         `yaml:"backend_url"`
	Timeout    time.Duration  `yaml:"timeout"`
	StatePath  string         `yaml:"state_path"`
	LogLevel   string         `yaml:"log_level"`
	S3         objects.Config `yaml:"s3"`
}

// Dir returns the portalctl configuration directory.
func Dir() string {
	if dir := os.Getenv("PORTAL_CONFIG_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "coffeeportal")
}

// DefaultCLI returns the built-in defaults.
func DefaultCLI() *CLI {
	return &CLI{
		BackendURL: "http://localhost:8000",
		Timeout:    10 * time.Second,
		StatePath:  filepath.Join(Dir(), "state.db"),
		LogLevel:   "warn",
	}
}

// LoadCLI reads path (or config.yaml in Dir when path is empty) over the
// defaults and applies environment overrides. A missing file is not an
// error.
func LoadCLI(path string) (*CLI, error) {
	cfg := DefaultCLI()
	if path == "" {
		path = filepath.Join(Dir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.BackendURL = envOr("PORTAL_BACKEND_URL", cfg.BackendURL)
	cfg.Timeout = envDuration("PORTAL_TIMEOUT", cfg.Timeout)
	cfg.StatePath = envOr("PORTAL_STATE_PATH", cfg.StatePath)
	cfg.LogLevel = envOr("PORTAL_LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

// BindFlags registers flags that override the loaded values.
func (c *CLI) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.BackendURL, "backend", c.BackendURL, "backend API base URL")
	flags.DurationVar(&c.Timeout, "timeout", c.Timeout, "request timeout")
	flags.StringVar(&c.StatePath, "state", c.StatePath, "path of the local state database")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
}

// Save writes the configuration as YAML.
func (c *CLI) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
