package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"wikirag/internal/domain"
)

// JSONStore keeps the manifest as one JSON object keyed by file path:
//
//	{"wiki/a.pdf": {"hash": "...", "ingested_at": "...", "chunks_count": 3, "collection": "wiki_usagers"}}
//
// Every operation re-reads the file under the store mutex, and writes go
// through a temp file and rename so a crash never leaves a truncated manifest.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// entry mirrors domain.FingerprintRecord on disk. IngestedAt stays a string
// so manifests written with naive ISO timestamps still load.
type entry struct {
	Hash        string `json:"hash"`
	IngestedAt  string `json:"ingested_at"`
	ChunksCount int    `json:"chunks_count"`
	Collection  string `json:"collection"`
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (e entry) record(path string) domain.FingerprintRecord {
	return domain.FingerprintRecord{
		FilePath:    path,
		Hash:        e.Hash,
		IngestedAt:  parseTime(e.IngestedAt),
		ChunksCount: e.ChunksCount,
		Collection:  e.Collection,
	}
}

func (s *JSONStore) load() (map[string]entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrManifestIO, s.path, err)
	}
	m := map[string]entry{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrManifestIO, s.path, err)
	}
	return m, nil
}

func (s *JSONStore) save(m map[string]entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrManifestIO, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrManifestIO, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrManifestIO, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrManifestIO, tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", domain.ErrManifestIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrManifestIO, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", domain.ErrManifestIO, s.path, err)
	}
	return nil
}

// Get returns nil, nil when the file has never been ingested.
func (s *JSONStore) Get(_ context.Context, filePath string) (*domain.FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	e, ok := m[filePath]
	if !ok {
		return nil, nil
	}
	rec := e.record(filePath)
	return &rec, nil
}

func (s *JSONStore) Put(_ context.Context, rec domain.FingerprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[rec.FilePath] = entry{
		Hash:        rec.Hash,
		IngestedAt:  rec.IngestedAt.Format(time.RFC3339Nano),
		ChunksCount: rec.ChunksCount,
		Collection:  rec.Collection,
	}
	return s.save(m)
}

// List returns all records ordered by file path.
func (s *JSONStore) List(_ context.Context) ([]domain.FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.FingerprintRecord, 0, len(m))
	for path, e := range m {
		out = append(out, e.record(path))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (s *JSONStore) Close() error { return nil }
