// Package config loads and validates the pgrotate.yaml runtime
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pgerrors "github.com/systmms/pgrotate/internal/errors"
	"github.com/systmms/pgrotate/internal/logging"
	"github.com/systmms/pgrotate/internal/secretstore"
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the pgrotate.yaml structure
type Definition struct {
	Version  int            `yaml:"version"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	Password PasswordConfig `yaml:"password,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
}

// StoreConfig holds the Secrets Manager client settings. Endpoint and
// the static credential pair are for LocalStack; when empty the AWS SDK
// default chain applies.
type StoreConfig struct {
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// DatabaseConfig holds connection settings for the rotation target.
type DatabaseConfig struct {
	SSLMode               string `yaml:"sslmode,omitempty"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds,omitempty"`
}

// PasswordConfig controls generated password parameters.
type PasswordConfig struct {
	Length int `yaml:"length,omitempty"`
}

// ServerConfig holds the HTTP harness settings for serve mode.
type ServerConfig struct {
	Listen      string `yaml:"listen,omitempty"`
	MetricsPath string `yaml:"metrics_path,omitempty"`
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Load reads and parses the pgrotate.yaml file. A missing file is not
// an error: every setting has a default and AWS credentials come from
// the SDK default chain.
func (c *Config) Load() error {
	def := Definition{}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Definition = &def
			return nil
		}
		return pgerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := yaml.Unmarshal(data, &def); err != nil {
		return pgerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return pgerrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your pgrotate.yaml file",
		}
	}

	if def.Database.SSLMode != "" && !validSSLModes[def.Database.SSLMode] {
		return pgerrors.ConfigError{
			Field:      "database.sslmode",
			Value:      def.Database.SSLMode,
			Message:    "unknown sslmode",
			Suggestion: "Use one of: disable, require, verify-ca, verify-full",
		}
	}

	if def.Database.ConnectTimeoutSeconds < 0 {
		return pgerrors.ConfigError{
			Field:      "database.connect_timeout_seconds",
			Value:      def.Database.ConnectTimeoutSeconds,
			Message:    "connect timeout must not be negative",
			Suggestion: "Use a positive number of seconds, or omit the field for the default",
		}
	}

	if def.Password.Length != 0 && def.Password.Length < 32 {
		return pgerrors.ConfigError{
			Field:      "password.length",
			Value:      def.Password.Length,
			Message:    "generated passwords must be at least 32 characters",
			Suggestion: "Set 'password.length' to 32 or higher, or omit it for the default",
		}
	}

	c.Definition = &def
	return nil
}

// StoreConfig converts the store section to the client settings type.
func (c *Config) StoreConfig() secretstore.Config {
	if c.Definition == nil {
		return secretstore.Config{}
	}
	return secretstore.Config{
		Region:          c.Definition.Store.Region,
		Endpoint:        c.Definition.Store.Endpoint,
		AccessKeyID:     c.Definition.Store.AccessKeyID,
		SecretAccessKey: c.Definition.Store.SecretAccessKey,
	}
}

// ConnectTimeout returns the configured database connect timeout, or
// zero when unset so callers fall back to their default.
func (c *Config) ConnectTimeout() time.Duration {
	if c.Definition == nil || c.Definition.Database.ConnectTimeoutSeconds == 0 {
		return 0
	}
	return time.Duration(c.Definition.Database.ConnectTimeoutSeconds) * time.Second
}

// ListenAddr returns the serve mode listen address.
func (c *Config) ListenAddr() string {
	if c.Definition == nil || c.Definition.Server.Listen == "" {
		return ":8080"
	}
	return c.Definition.Server.Listen
}

// MetricsPath returns the path the metrics handler is mounted on.
func (c *Config) MetricsPath() string {
	if c.Definition == nil || c.Definition.Server.MetricsPath == "" {
		return "/metrics"
	}
	return c.Definition.Server.MetricsPath
}

// String renders the effective settings for debug logging. Credentials
// are never included.
func (c *Config) String() string {
	if c.Definition == nil {
		return "config{unloaded}"
	}
	return fmt.Sprintf("config{region=%s endpoint=%s sslmode=%s listen=%s}",
		c.Definition.Store.Region, c.Definition.Store.Endpoint,
		c.Definition.Database.SSLMode, c.ListenAddr())
}
