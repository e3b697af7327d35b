// Package config holds the serve command's settings: defaults, viper
// binding and validation.
package config

import (
	"strings"
	"time"

	"reconciliation-task-service/pkg/errors"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Every field maps to a viper key,
// a flag and a RECON_* environment variable.
type Config struct {
	ListenHost           string `mapstructure:"listen_host"`
	ListenPort           int    `mapstructure:"listen_port"`
	MaxConcurrentTasks   int    `mapstructure:"max_concurrent_tasks"`
	TaskTimeoutSeconds   int    `mapstructure:"task_timeout_seconds"`
	UploadMaxBytes       int64  `mapstructure:"upload_max_bytes"`
	AllowedExtensions    string `mapstructure:"allowed_extensions"`
	UploadDir            string `mapstructure:"upload_dir"`
	ResultsDir           string `mapstructure:"results_dir"`
	DatePartitionUploads bool   `mapstructure:"date_partition_uploads"`
	LogLevel             string `mapstructure:"log_level"`
	LogFormat            string `mapstructure:"log_format"`
}

// SetDefaults registers every key's default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("listen_port", 3335)
	v.SetDefault("max_concurrent_tasks", 5)
	v.SetDefault("task_timeout_seconds", 3600)
	v.SetDefault("upload_max_bytes", int64(100*1024*1024))
	v.SetDefault("allowed_extensions", ".csv,.xlsx,.xls")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("results_dir", "./results")
	v.SetDefault("date_partition_uploads", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load unmarshals and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "listen_port", c.ListenPort, nil)
	}
	if c.MaxConcurrentTasks <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_concurrent_tasks", c.MaxConcurrentTasks, nil)
	}
	if c.TaskTimeoutSeconds <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "task_timeout_seconds", c.TaskTimeoutSeconds, nil)
	}
	if c.UploadMaxBytes <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "upload_max_bytes", c.UploadMaxBytes, nil)
	}
	if len(c.Extensions()) == 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "allowed_extensions", c.AllowedExtensions, nil)
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "upload_dir", c.UploadDir, nil)
	}
	if strings.TrimSpace(c.ResultsDir) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "results_dir", c.ResultsDir, nil)
	}
	return nil
}

// Extensions returns the allowed extensions as a lower-cased list, dots
// included. Entries without a leading dot get one.
func (c *Config) Extensions() []string {
	var out []string
	for _, raw := range strings.Split(c.AllowedExtensions, ",") {
		ext := strings.ToLower(strings.TrimSpace(raw))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// TaskTimeout returns the per-task time budget.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}
