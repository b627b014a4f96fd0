package entitlement

import (
	"fmt"
	"log/slog"
	"sync"

	"tve-auth/internal/platform/logger"
)

// CatalogStore holds the current catalog. Readers always see a complete,
// validated catalog; a failed reload keeps the previous one.
type CatalogStore struct {
	mu      sync.RWMutex
	current *Catalog
	path    string
	log     *slog.Logger
}

// NewCatalogStore returns a store serving c. path is where Reload reads from
// and may be empty for a fixed catalog.
func NewCatalogStore(c *Catalog, path string, log *slog.Logger) *CatalogStore {
	return &CatalogStore{current: c, path: path, log: logger.Component(log, "catalog")}
}

// OpenCatalogStore loads path and returns a store for it.
func OpenCatalogStore(path string, log *slog.Logger) (*CatalogStore, error) {
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return NewCatalogStore(c, path, log), nil
}

// Get returns the current catalog. Callers must not modify it.
func (s *CatalogStore) Get() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the catalog after validating it.
func (s *CatalogStore) Set(c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	return nil
}

// Path returns the file the store reloads from.
func (s *CatalogStore) Path() string {
	return s.path
}

// Reload re-reads the catalog file.
func (s *CatalogStore) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := LoadCatalog(s.path)
	if err != nil {
		s.log.Error("catalog reload failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return fmt.Errorf("reload catalog: %w", err)
	}
	if err := s.Set(c); err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	s.log.Info("catalog reloaded",
		slog.String("path", s.path),
		slog.Int("providers", len(c.Providers)),
		slog.Int("requestors", len(c.Requestors)))
	return nil
}
