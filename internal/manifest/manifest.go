// Package manifest persists per-file ingestion fingerprints.
package manifest

import (
	"fmt"
	"strings"

	"wikirag/internal/domain"
)

// Open returns the fingerprint store for the configured driver.
func Open(driver, path string) (domain.FingerprintStore, error) {
	switch strings.ToLower(driver) {
	case "", "json":
		return NewJSONStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: unknown manifest driver %q", domain.ErrInvalidConfig, driver)
	}
}
