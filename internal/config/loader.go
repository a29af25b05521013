package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (SEMIDX_*)
// 2. Config file (.semidx/config.yml or .semidx/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".semidx")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("SEMIDX")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., SEMIDX_WATCH_BATCH_SIZE)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables to config keys
	v.BindEnv("watch.root")
	v.BindEnv("watch.enabled")
	v.BindEnv("watch.auto_start")
	v.BindEnv("watch.debounce_seconds")
	v.BindEnv("watch.batch_size")
	v.BindEnv("watch.max_queue_size")
	v.BindEnv("watch.stats_interval_minutes")
	v.BindEnv("watch.max_file_size_mb")

	v.BindEnv("chunking.max_tokens")
	v.BindEnv("chunking.min_tokens")
	v.BindEnv("chunking.overlap_ratio")

	v.BindEnv("embedding.provider")
	v.BindEnv("embedding.model")
	v.BindEnv("embedding.dimensions")
	v.BindEnv("embedding.endpoint")

	v.BindEnv("ingest.concurrency")
	v.BindEnv("ingest.max_attempts")
	v.BindEnv("ingest.backoff_base_sec")
	v.BindEnv("ingest.batch_size")

	v.BindEnv("store.path")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Relative watch roots resolve against the loader's root directory.
	if !filepath.IsAbs(cfg.Watch.Root) {
		cfg.Watch.Root = filepath.Join(l.rootDir, cfg.Watch.Root)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers default values in viper from Default().
func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("watch.root", def.Watch.Root)
	v.SetDefault("watch.enabled", def.Watch.Enabled)
	v.SetDefault("watch.auto_start", def.Watch.AutoStart)
	v.SetDefault("watch.debounce_seconds", def.Watch.DebounceSeconds)
	v.SetDefault("watch.batch_size", def.Watch.BatchSize)
	v.SetDefault("watch.max_queue_size", def.Watch.MaxQueueSize)
	v.SetDefault("watch.stats_interval_minutes", def.Watch.StatsIntervalMinutes)
	v.SetDefault("watch.include_patterns", def.Watch.IncludePatterns)
	v.SetDefault("watch.exclude_dirs", def.Watch.ExcludeDirs)
	v.SetDefault("watch.exclude_files", def.Watch.ExcludeFiles)
	v.SetDefault("watch.max_file_size_mb", def.Watch.MaxFileSizeMB)

	v.SetDefault("chunking.max_tokens", def.Chunking.MaxTokens)
	v.SetDefault("chunking.min_tokens", def.Chunking.MinTokens)
	v.SetDefault("chunking.overlap_ratio", def.Chunking.OverlapRatio)

	v.SetDefault("embedding.provider", def.Embedding.Provider)
	v.SetDefault("embedding.model", def.Embedding.Model)
	v.SetDefault("embedding.dimensions", def.Embedding.Dimensions)
	v.SetDefault("embedding.endpoint", def.Embedding.Endpoint)

	v.SetDefault("ingest.concurrency", def.Ingest.Concurrency)
	v.SetDefault("ingest.max_attempts", def.Ingest.MaxAttempts)
	v.SetDefault("ingest.backoff_base_sec", def.Ingest.BackoffBaseSec)
	v.SetDefault("ingest.batch_size", def.Ingest.BatchSize)

	v.SetDefault("store.path", def.Store.Path)
}
