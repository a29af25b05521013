package cli

import (
	"fmt"
	"path/filepath"

	"github.com/runeset/semidx/internal/config"
	"github.com/runeset/semidx/internal/embed"
	"github.com/runeset/semidx/internal/index"
	"github.com/runeset/semidx/internal/vectorstore"
)

// buildService loads configuration from the project root and assembles the
// indexing service with its backend and store. The returned cleanup closes
// both.
func buildService() (*index.Service, *config.Config, func(), error) {
	rootDir, err := resolveRoot()
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.NewLoader(rootDir).Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	backend := embed.New(cfg.Embedding.Provider, cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	storePath := cfg.Store.Path
	if storePath != "" && !filepath.IsAbs(storePath) {
		storePath = filepath.Join(rootDir, storePath)
	}
	store, err := vectorstore.New(storePath, cfg.Embedding.Model)
	if err != nil {
		backend.Close()
		return nil, nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	svc, err := index.New(cfg, backend, store)
	if err != nil {
		store.Close()
		backend.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		store.Close()
		backend.Close()
	}
	return svc, cfg, cleanup, nil
}
