package config

import "time"

// Config represents the complete semidx configuration.
// It can be loaded from .semidx/config.yml with environment variable overrides
// and is immutable after Load.
type Config struct {
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
}

// WatchConfig controls filesystem watching and batch scheduling.
type WatchConfig struct {
	Root                 string   `yaml:"root" mapstructure:"root"`                                     // directory to watch recursively
	Enabled              bool     `yaml:"enabled" mapstructure:"enabled"`                               // master switch for continuous indexing
	AutoStart            bool     `yaml:"auto_start" mapstructure:"auto_start"`                         // start watching on service start
	DebounceSeconds      float64  `yaml:"debounce_seconds" mapstructure:"debounce_seconds"`             // quiet period before a change is queued
	BatchSize            int      `yaml:"batch_size" mapstructure:"batch_size"`                         // max files per scheduler batch
	MaxQueueSize         int      `yaml:"max_queue_size" mapstructure:"max_queue_size"`                 // bounded queue depth
	StatsIntervalMinutes int      `yaml:"stats_interval_minutes" mapstructure:"stats_interval_minutes"` // periodic stats log interval
	IncludePatterns      []string `yaml:"include_patterns" mapstructure:"include_patterns"`             // glob patterns to index
	ExcludeDirs          []string `yaml:"exclude_dirs" mapstructure:"exclude_dirs"`                     // directory names to skip
	ExcludeFiles         []string `yaml:"exclude_files" mapstructure:"exclude_files"`                   // file globs to skip
	MaxFileSizeMB        int      `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`             // per-file size cap
}

// ChunkingConfig defines how document text is chunked for embedding.
type ChunkingConfig struct {
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens"`       // max tokens per chunk
	MinTokens    int     `yaml:"min_tokens" mapstructure:"min_tokens"`       // chunks shorter than this merge into a neighbor
	OverlapRatio float64 `yaml:"overlap_ratio" mapstructure:"overlap_ratio"` // token overlap between consecutive chunks
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`     // "http" or "mock"
	Model      string `yaml:"model" mapstructure:"model"`           // e.g., "BAAI/bge-small-en-v1.5"
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"` // embedding vector dimensions
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`     // embedding service endpoint URL
}

// IngestConfig bounds the embedding ingestion pipeline.
type IngestConfig struct {
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`           // in-flight embedding calls
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`         // attempt cap per chunk
	BackoffBaseSec float64 `yaml:"backoff_base_sec" mapstructure:"backoff_base_sec"` // exponential backoff base
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`             // documents per streamed ingest batch
}

// StoreConfig defines vector store persistence.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // empty means in-memory only
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Root:                 ".",
			Enabled:              true,
			AutoStart:            true,
			DebounceSeconds:      2.0,
			BatchSize:            25,
			MaxQueueSize:         1000,
			StatsIntervalMinutes: 5,
			IncludePatterns: []string{
				"**/*.go",
				"**/*.py",
				"**/*.ts",
				"**/*.tsx",
				"**/*.js",
				"**/*.jsx",
				"**/*.rs",
				"**/*.java",
				"**/*.md",
				"**/*.yml",
				"**/*.yaml",
				"**/*.json",
				"**/*.txt",
			},
			ExcludeDirs: []string{
				"node_modules",
				"vendor",
				".git",
				"dist",
				"build",
				"target",
				"__pycache__",
				".venv",
			},
			ExcludeFiles: []string{
				"*.pyc",
				"*.log",
				"*.tmp",
				"*.swp",
				"*.lock",
			},
			MaxFileSizeMB: 2,
		},
		Chunking: ChunkingConfig{
			MaxTokens:    512,
			MinTokens:    100,
			OverlapRatio: 0.15,
		},
		Embedding: EmbeddingConfig{
			Provider:   "http",
			Model:      "BAAI/bge-small-en-v1.5",
			Dimensions: 384,
			Endpoint:   "http://127.0.0.1:8121/embed",
		},
		Ingest: IngestConfig{
			Concurrency:    2,
			MaxAttempts:    5,
			BackoffBaseSec: 0.5,
			BatchSize:      16,
		},
		Store: StoreConfig{
			Path: "",
		},
	}
}

// DebounceInterval returns the debounce window as a duration.
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Watch.DebounceSeconds * float64(time.Second))
}

// StatsInterval returns the stats reporting interval as a duration.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Watch.StatsIntervalMinutes) * time.Minute
}

// MaxFileSizeBytes returns the per-file size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Watch.MaxFileSizeMB) * 1024 * 1024
}

// BackoffBase returns the retry backoff base as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Ingest.BackoffBaseSec * float64(time.Second))
}
