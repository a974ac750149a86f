// Package config provides configuration management for Ptolemy Upload.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prn-tf/ptolemy-upload/internal/sigv4"
)

// Config represents the complete application configuration.
type Config struct {
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// EndpointConfig holds target object store settings. Bucket and host are
// ordinary caller-supplied parameters; nothing here is baked in.
type EndpointConfig struct {
	// URL is the base endpoint, e.g. "https://objects.example.com:9000".
	URL string `mapstructure:"url"`

	// Bucket is the default target bucket.
	Bucket string `mapstructure:"bucket"`
}

// AuthConfig holds signing settings. Credentials are usually supplied via
// the PTOLEMY_AUTH_ACCESS_KEY_ID and PTOLEMY_AUTH_SECRET_ACCESS_KEY
// environment variables rather than the config file.
type AuthConfig struct {
	// AccessKeyID is the access key ID.
	AccessKeyID string `mapstructure:"access_key_id"`

	// SecretAccessKey is the secret access key. Never logged.
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// Region is the region component of the credential scope.
	Region string `mapstructure:"region"`

	// Service is the service component of the credential scope.
	Service string `mapstructure:"service"`
}

// UploadConfig holds upload behavior settings.
type UploadConfig struct {
	// StorageClass is the x-amz-storage-class value. Empty omits the header.
	StorageClass string `mapstructure:"storage_class"`

	// ContentType is the default content type for uploaded objects.
	ContentType string `mapstructure:"content_type"`

	// Workers bounds the concurrent uploads in batch mode.
	Workers int `mapstructure:"workers"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if the metrics endpoint is served.
	Enabled bool `mapstructure:"enabled"`

	// Port is the port for the metrics HTTP server.
	Port int `mapstructure:"port"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with PTOLEMY_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("PTOLEMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ptolemy")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Endpoint defaults
	v.SetDefault("endpoint.url", "")
	v.SetDefault("endpoint.bucket", "")

	// Auth defaults
	v.SetDefault("auth.access_key_id", "")
	v.SetDefault("auth.secret_access_key", "")
	v.SetDefault("auth.region", sigv4.DefaultRegion)
	v.SetDefault("auth.service", sigv4.ServiceS3)

	// Upload defaults
	v.SetDefault("upload.storage_class", "")
	v.SetDefault("upload.content_type", "")
	v.SetDefault("upload.workers", 4)
	v.SetDefault("upload.timeout", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9091)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Endpoint.URL == "" {
		return fmt.Errorf("endpoint.url is required")
	}

	if c.Auth.Region == "" {
		return fmt.Errorf("auth.region is required")
	}
	if c.Auth.Service == "" {
		return fmt.Errorf("auth.service is required")
	}

	if c.Upload.Workers < 1 {
		return fmt.Errorf("upload.workers must be at least 1")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}
