// Package memory is an in-process vector index using brute-force cosine
// similarity. It backs tests and single-process runs without Qdrant.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"wikirag/internal/domain"
)

type collection struct {
	dimension int
	points    map[uint64]domain.Point
}

// Storage implements domain.VectorIndex.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrIndex, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, want %d", domain.ErrIndex, name, c.dimension, dimension)
		}
		return nil
	}
	s.collections[name] = &collection{dimension: dimension, points: make(map[uint64]domain.Point)}
	return nil
}

func (s *Storage) Upsert(_ context.Context, name string, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: collection %s not found", domain.ErrIndex, name)
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("%w: vector dimension mismatch: got %d, want %d", domain.ErrIndex, len(p.Vector), c.dimension)
		}
	}
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, name string, filter domain.FileFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	for id, p := range c.points {
		if p.Payload.FilePath == filter.FilePath && p.Payload.ChunkIndex >= filter.MinChunkIndex {
			delete(c.points, id)
		}
	}
	return nil
}

func (s *Storage) Search(_ context.Context, name string, vector []float32, limit int) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s not found", domain.ErrIndex, name)
	}
	hits := make([]domain.Hit, 0, len(c.points))
	for id, p := range c.points {
		payload := p.Payload
		hits = append(hits, domain.Hit{ID: id, Score: cosine(p.Vector, vector), Payload: &payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// Points returns a snapshot of a collection ordered by file path and chunk
// index. Used by tests and diagnostics.
func (s *Storage) Points(name string) []domain.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	out := make([]domain.Point, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Payload.FilePath != out[j].Payload.FilePath {
			return out[i].Payload.FilePath < out[j].Payload.FilePath
		}
		return out[i].Payload.ChunkIndex < out[j].Payload.ChunkIndex
	})
	return out
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
