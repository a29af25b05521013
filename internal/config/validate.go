package config

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrInvalidRoot indicates a missing or unusable watch root
	ErrInvalidRoot = errors.New("invalid watch root")

	// ErrInvalidBatchSize indicates a non-positive batch size
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidQueueSize indicates a non-positive queue size
	ErrInvalidQueueSize = errors.New("invalid queue size")

	// ErrInvalidDebounce indicates a negative debounce interval
	ErrInvalidDebounce = errors.New("invalid debounce interval")

	// ErrInvalidFileSize indicates a non-positive file size cap
	ErrInvalidFileSize = errors.New("invalid max file size")

	// ErrEmptyIncludes indicates no include patterns are configured
	ErrEmptyIncludes = errors.New("empty include patterns")

	// ErrInvalidChunking indicates inconsistent chunking bounds
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidProvider indicates an unsupported embedding provider
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrEmptyModel indicates a missing embedding model
	ErrEmptyModel = errors.New("empty embedding model")

	// ErrInvalidIngest indicates invalid ingestion pipeline bounds
	ErrInvalidIngest = errors.New("invalid ingest configuration")
)

// Validate checks that the configuration is valid and complete. All problems
// are collected and reported together so a misconfigured deployment fails
// fast with the full list.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateWatch(&cfg.Watch); err != nil {
		errs = append(errs, err)
	}
	if err := validateChunking(&cfg.Chunking); err != nil {
		errs = append(errs, err)
	}
	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}
	if err := validateIngest(&cfg.Ingest); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%w", errors.Join(errs...))
	}

	return nil
}

func validateWatch(w *WatchConfig) error {
	var errs []error

	if w.Root == "" {
		errs = append(errs, fmt.Errorf("%w: root is empty", ErrInvalidRoot))
	} else if info, err := os.Stat(w.Root); err != nil {
		errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, w.Root, err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, w.Root))
	}

	if w.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidBatchSize, w.BatchSize))
	}
	if w.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_queue_size must be positive, got %d", ErrInvalidQueueSize, w.MaxQueueSize))
	}
	if w.DebounceSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: debounce_seconds must not be negative, got %g", ErrInvalidDebounce, w.DebounceSeconds))
	}
	if w.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_file_size_mb must be positive, got %d", ErrInvalidFileSize, w.MaxFileSizeMB))
	}
	if len(w.IncludePatterns) == 0 {
		errs = append(errs, ErrEmptyIncludes)
	}

	return errors.Join(errs...)
}

func validateChunking(c *ChunkingConfig) error {
	var errs []error

	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidChunking, c.MaxTokens))
	}
	if c.MinTokens < 0 || c.MinTokens >= c.MaxTokens {
		errs = append(errs, fmt.Errorf("%w: min_tokens must be in [0, max_tokens), got %d", ErrInvalidChunking, c.MinTokens))
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		errs = append(errs, fmt.Errorf("%w: overlap_ratio must be in [0, 1), got %g", ErrInvalidChunking, c.OverlapRatio))
	}

	return errors.Join(errs...)
}

func validateEmbedding(e *EmbeddingConfig) error {
	var errs []error

	switch e.Provider {
	case "http", "mock":
	default:
		errs = append(errs, fmt.Errorf("%w: %q (expected \"http\" or \"mock\")", ErrInvalidProvider, e.Provider))
	}
	if e.Model == "" {
		errs = append(errs, ErrEmptyModel)
	}
	if e.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must be positive, got %d", e.Dimensions))
	}
	if e.Provider == "http" && e.Endpoint == "" {
		errs = append(errs, errors.New("empty embedding endpoint"))
	}

	return errors.Join(errs...)
}

func validateIngest(i *IngestConfig) error {
	var errs []error

	if i.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidIngest, i.Concurrency))
	}
	if i.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_attempts must be positive, got %d", ErrInvalidIngest, i.MaxAttempts))
	}
	if i.BackoffBaseSec < 0 {
		errs = append(errs, fmt.Errorf("%w: backoff_base_sec must not be negative, got %g", ErrInvalidIngest, i.BackoffBaseSec))
	}
	if i.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidIngest, i.BatchSize))
	}

	return errors.Join(errs...)
}
