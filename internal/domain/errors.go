package domain

import "errors"

// Pipeline errors. Callers wrap the underlying cause with
// fmt.Errorf("%w: %w", domain.ErrX, err) so both remain inspectable.
var (
	// ErrConversion indicates the source could not be read or converted.
	ErrConversion = errors.New("conversion failed")

	// ErrEmptyContent indicates conversion succeeded but produced nothing to index.
	ErrEmptyContent = errors.New("no content to index")

	// ErrEmbedding indicates the embedding service failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndex indicates a vector index operation failed.
	ErrIndex = errors.New("vector index operation failed")

	// ErrGeneration indicates the answer service failed or returned nothing usable.
	ErrGeneration = errors.New("generation failed")

	// ErrManifestIO indicates the fingerprint store could not be read or written.
	ErrManifestIO = errors.New("manifest I/O failed")

	// ErrInvalidConfig indicates a configuration value is unusable.
	ErrInvalidConfig = errors.New("invalid configuration")
)
