// Package qdrant is a minimal REST client for the Qdrant vector database.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wikirag/internal/domain"
	"wikirag/internal/logger"
)

// Storage implements domain.VectorIndex over Qdrant's HTTP API.
// Collections use cosine distance and a keyword index on file_path.
type Storage struct {
	url       string
	apiKey    string
	batchSize int
	client    *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// UpsertBatchSize caps the number of points per upsert request.
	UpsertBatchSize int
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Storage{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		batchSize: batch,
		client:    &http.Client{Timeout: timeout},
	}
}

// statusError carries the HTTP status of a failed call so callers can tell
// a missing collection from other failures.
type statusError struct {
	method, path string
	code         int
	status, body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s %s", e.method, e.path, e.status, e.body)
}

// EnsureCollection creates the collection and its file_path index when missing.
// An existing collection with another vector size is an error.
func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrIndex, dimension)
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, collectionPath(name), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, embedder produces %d", domain.ErrIndex, name, size, dimension)
		}
		return nil
	}
	if se, ok := err.(*statusError); !ok || se.code != http.StatusNotFound {
		return fmt.Errorf("%w: %w", domain.ErrIndex, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, collectionPath(name), body, nil); err != nil {
		return fmt.Errorf("%w: create collection: %w", domain.ErrIndex, err)
	}
	index := map[string]any{"field_name": "file_path", "field_schema": "keyword"}
	if err := s.do(ctx, http.MethodPut, collectionPath(name)+"/index?wait=true", index, nil); err != nil {
		return fmt.Errorf("%w: create payload index: %w", domain.ErrIndex, err)
	}
	return nil
}

type point struct {
	ID      uint64                `json:"id"`
	Vector  []float32             `json:"vector"`
	Payload domain.PassagePayload `json:"payload"`
}

// Upsert writes points in batches; existing ids are overwritten.
func (s *Storage) Upsert(ctx context.Context, collection string, points []domain.Point) error {
	for start := 0; start < len(points); start += s.batchSize {
		end := start + s.batchSize
		if end > len(points) {
			end = len(points)
		}
		batch := make([]point, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
		}
		body := map[string]any{"points": batch}
		if err := s.do(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", body, nil); err != nil {
			return fmt.Errorf("%w: upsert %d points into %s: %w", domain.ErrIndex, len(batch), collection, err)
		}
		logger.L().Debug("upserted batch", "collection", collection, "from", start, "to", end, "total", len(points))
	}
	return nil
}

// Delete removes the points selected by the filter. Deleting from a missing
// collection is a no-op.
func (s *Storage) Delete(ctx context.Context, collection string, filter domain.FileFilter) error {
	must := []map[string]any{
		{"key": "file_path", "match": map[string]any{"value": filter.FilePath}},
	}
	if filter.MinChunkIndex > 0 {
		must = append(must, map[string]any{"key": "chunk_index", "range": map[string]any{"gte": filter.MinChunkIndex}})
	}
	body := map[string]any{"filter": map[string]any{"must": must}}
	err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", body, nil)
	if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: delete %s from %s: %w", domain.ErrIndex, filter.FilePath, collection, err)
	}
	return nil
}

// Search returns up to limit hits ranked by cosine similarity.
func (s *Storage) Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.Hit, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", domain.ErrIndex, collection, err)
	}
	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		// UUID ids belong to points this tool did not write.
		id, err := strconv.ParseUint(string(r.ID), 10, 64)
		if err != nil {
			logger.L().Debug("skipping point with non-integer id", "collection", collection, "id", string(r.ID))
			continue
		}
		hits = append(hits, domain.Hit{ID: id, Score: r.Score, Payload: decodePayload(r.Payload)})
	}
	return hits, nil
}

// decodePayload returns nil for payloads that are not passage records.
func decodePayload(raw json.RawMessage) *domain.PassagePayload {
	if len(raw) == 0 {
		return nil
	}
	var p domain.PassagePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.FilePath == "" {
		return nil
	}
	return &p
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, path: path, code: resp.StatusCode, status: resp.Status, body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
