package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration. Only operational
// concerns live here; trust-boundary values are constants (see constants.go).
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains the local status HTTP server configuration. The
// server binds loopback only; it exists for the projection shell, not for
// remote clients.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8741"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LoginRPS        float64       `yaml:"login_rps" envconfig:"LOGIN_RPS" default:"1"`
	LoginBurst      int           `yaml:"login_burst" envconfig:"LOGIN_BURST" default:"3"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/canvas.log"`
}

// PathsConfig allows tests and portable installs to relocate state
// directories. Empty values resolve to the platform defaults in paths.go.
type PathsConfig struct {
	ProfileDir string `yaml:"profile_dir" envconfig:"PROFILE_DIR"`
	MachineDir string `yaml:"machine_dir" envconfig:"MACHINE_DIR"`
}

// Load builds the configuration from an optional YAML file overlaid with
// CANVAS_-prefixed environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("CANVAS", cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks operational invariants.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.LoginBurst < 1 {
		return fmt.Errorf("login burst must be at least 1")
	}
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q", c.Logging.Output)
	}
	return nil
}
