package domain

import "context"

// Converter turns a source file into an ordered stream of structural chunks
// with page/table provenance.
type Converter interface {
	Convert(ctx context.Context, path string) ([]RawChunk, error)
}

// PreConverter rewrites legacy binary formats into an intermediate file that a
// Converter understands. The returned path lives under outDir.
type PreConverter interface {
	Needs(path string) bool
	PreConvert(ctx context.Context, path, outDir string) (string, error)
}

// TaskHint tells an embedder whether it encodes stored passages or a query.
// Both sides of the index must use the same convention.
type TaskHint string

const (
	TaskPassage TaskHint = "passage"
	TaskQuery   TaskHint = "query"
)

// Embedder converts texts into fixed-dimension vectors.
type Embedder interface {
	Name() string
	// Dimension reports the vector size, probing the service if needed.
	Dimension(ctx context.Context) (int, error)
	Embed(ctx context.Context, texts []string, hint TaskHint) ([][]float32, error)
}

// VectorIndex stores points with payloads and supports similarity search.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, filter FileFilter) error
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)
}

// Generator is a chat-style completion service.
type Generator interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// FingerprintStore persists one FingerprintRecord per source file.
// Put replaces a record as a whole; there are no partial updates.
type FingerprintStore interface {
	Get(ctx context.Context, filePath string) (*FingerprintRecord, error)
	Put(ctx context.Context, record FingerprintRecord) error
	List(ctx context.Context) ([]FingerprintRecord, error)
	Close() error
}
