package config

import (
	"reflect"
	"testing"
	"time"

	"reconciliation-task-service/pkg/errors"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ListenHost != "0.0.0.0" || cfg.ListenPort != 3335 {
		t.Errorf("listen = %s:%d", cfg.ListenHost, cfg.ListenPort)
	}
	if cfg.MaxConcurrentTasks != 5 {
		t.Errorf("max_concurrent_tasks = %d", cfg.MaxConcurrentTasks)
	}
	if cfg.TaskTimeout() != 3600*time.Second {
		t.Errorf("task timeout = %v", cfg.TaskTimeout())
	}
	if cfg.UploadMaxBytes != 100*1024*1024 {
		t.Errorf("upload_max_bytes = %d", cfg.UploadMaxBytes)
	}
	if want := []string{".csv", ".xlsx", ".xls"}; !reflect.DeepEqual(cfg.Extensions(), want) {
		t.Errorf("extensions = %v, want %v", cfg.Extensions(), want)
	}
	if cfg.DatePartitionUploads {
		t.Error("date partitioning on by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("listen_port", 9000)
	v.Set("allowed_extensions", "CSV, .Xlsx")
	v.Set("log_level", "debug")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenPort != 9000 {
		t.Errorf("listen_port = %d", cfg.ListenPort)
	}
	if want := []string{".csv", ".xlsx"}; !reflect.DeepEqual(cfg.Extensions(), want) {
		t.Errorf("extensions = %v, want %v", cfg.Extensions(), want)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := Load(v)
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.ListenPort = 0 }},
		{"port out of range", func(c *Config) { c.ListenPort = 70000 }},
		{"zero pool", func(c *Config) { c.MaxConcurrentTasks = 0 }},
		{"negative timeout", func(c *Config) { c.TaskTimeoutSeconds = -1 }},
		{"zero size cap", func(c *Config) { c.UploadMaxBytes = 0 }},
		{"no extensions", func(c *Config) { c.AllowedExtensions = " , " }},
		{"blank upload dir", func(c *Config) { c.UploadDir = "  " }},
		{"blank results dir", func(c *Config) { c.ResultsDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() accepted a bad config")
			}
			if re, ok := errors.AsReconcilerError(err); !ok || re.Category != errors.CategoryConfiguration {
				t.Errorf("error = %v, want a configuration error", err)
			}
		})
	}
}
