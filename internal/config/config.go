// WSL Dev Bridge - Configuration
// Optional YAML config file with environment overlay. Precedence is
// defaults < file < environment < CLI flags; the flags are applied by the
// command layer.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds everything the orchestrator needs for one run. Nothing in
// here describes the topology: that is probed fresh every time.
type Config struct {
	// Browser is the target browser: chrome, firefox, or librewolf.
	Browser string `yaml:"browser"`

	// DebugPort is the remote debugging port.
	DebugPort int `yaml:"debug_port"`

	// HTTPPort serves the embedded test page for --serve / --test.
	HTTPPort int `yaml:"http_port"`

	// ProfileDir overrides the throwaway profile location.
	ProfileDir string `yaml:"profile_dir,omitempty"`

	// CheckTimeout bounds each connectivity check.
	CheckTimeout time.Duration `yaml:"check_timeout,omitempty"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level,omitempty"`

	// LogFile tees log output into a file when set.
	LogFile string `yaml:"log_file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Browser:      "chrome",
		DebugPort:    9222,
		HTTPPort:     8080,
		CheckTimeout: 3 * time.Second,
		LogLevel:     "info",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, "wsldev", "config.yaml")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "wsldev", "config.yaml")
	}
	return "wsldev.yaml"
}

// Load reads the config file at path (missing file means defaults), then
// overlays environment variables, including any from a local .env file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.WithField("path", path).Debug("No config file, using defaults")
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	// Best effort: a .env in the working directory is developer
	// convenience, not required state.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration, creating the directory as needed.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WSLDEV_BROWSER"); v != "" {
		c.Browser = v
	}
	if v := os.Getenv("WSLDEV_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.DebugPort = port
		} else {
			log.WithField("value", v).Warn("Ignoring non-numeric WSLDEV_PORT")
		}
	}
	if v := os.Getenv("WSLDEV_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
	if v := os.Getenv("WSLDEV_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.DebugPort <= 0 || c.DebugPort > 65535 {
		return fmt.Errorf("debug port %d out of range", c.DebugPort)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTPPort)
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = Default().CheckTimeout
	}
	return nil
}
