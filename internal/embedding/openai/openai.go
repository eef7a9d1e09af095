// Package openai is a batch client for OpenAI-compatible /embeddings endpoints
// (OpenAI, Jina, Ollama, llama.cpp, TEI).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wikirag/internal/domain"
)

// Task modes select how the passage/query asymmetry is sent to the model.
const (
	TaskModeNone   = "none"
	TaskModePrefix = "prefix" // e5 style "passage: " / "query: " text prefixes
	TaskModeField  = "field"  // Jina style "task": "retrieval.passage"
)

const probeText = "dimension probe"

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	taskMode   string
	batchSize  int
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration

	mu        sync.Mutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64
	TaskMode          string
	// Dimensions, when set, is requested from the model and skips the probe.
	Dimensions int
}

// NewClient creates a new embeddings client using the provided configuration.
// The API key is optional since local embedding servers rarely need one.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	switch cfg.TaskMode {
	case "":
		cfg.TaskMode = TaskModeNone
	case TaskModeNone, TaskModePrefix, TaskModeField:
	default:
		return nil, fmt.Errorf("%w: unknown embedder task mode %q", domain.ErrInvalidConfig, cfg.TaskMode)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	t := cfg.Timeout
	if t == 0 {
		t = 2 * time.Minute
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		taskMode:   cfg.TaskMode,
		batchSize:  cfg.BatchSize,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
		backoff:    200 * time.Millisecond,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the vector size, probing the model once when it is not
// configured.
func (c *Client) Dimension(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension > 0 {
		return c.dimension, nil
	}
	if c.dimensions > 0 {
		c.dimension = c.dimensions
		return c.dimension, nil
	}
	vecs, err := c.embedBatch(ctx, []string{probeText}, domain.TaskPassage)
	if err != nil {
		return 0, err
	}
	c.dimension = len(vecs[0])
	return c.dimension, nil
}

// Embed encodes texts in order, splitting them into batches of the configured size.
func (c *Client) Embed(ctx context.Context, texts []string, hint domain.TaskHint) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end], hint)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Task       string   `json:"task,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape for single inputs.
	Embedding []float32 `json:"embedding"`
}

// applyTask rewrites inputs for prefix mode and returns the task field for field mode.
func (c *Client) applyTask(texts []string, hint domain.TaskHint) ([]string, string) {
	switch c.taskMode {
	case TaskModePrefix:
		prefixed := make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = string(hint) + ": " + t
		}
		return prefixed, ""
	case TaskModeField:
		return texts, "retrieval." + string(hint)
	}
	return texts, ""
}

func (c *Client) embedBatch(ctx context.Context, texts []string, hint domain.TaskHint) ([][]float32, error) {
	inputs, task := c.applyTask(texts, hint)
	data, err := json.Marshal(embedRequest{Input: inputs, Model: c.model, Task: task, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", domain.ErrEmbedding, err)
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: create request: %w", domain.ErrEmbedding, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbedding, ctx.Err())
			}
			lastErr = err
			if err := c.wait(ctx, c.retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embeddings endpoint returned %s", resp.Status)
			delay := c.retryDelay(attempt)
			// Respect Retry-After if provided
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				delay = time.Duration(secs) * time.Second
			}
			if attempt < c.maxRetries {
				if err := c.wait(ctx, delay); err != nil {
					return nil, err
				}
			}
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			// 4xx is not retried.
			return nil, fmt.Errorf("%w: embeddings endpoint returned %s: %s", domain.ErrEmbedding, resp.Status, truncate(payload))
		}
		if err != nil {
			lastErr = err
			if err := c.wait(ctx, c.retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		return decodeEmbeddings(payload, len(texts))
	}
	return nil, fmt.Errorf("%w: giving up after %d attempts: %w", domain.ErrEmbedding, c.maxRetries+1, lastErr)
}

func decodeEmbeddings(payload []byte, want int) ([][]float32, error) {
	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrEmbedding, err)
	}
	if len(out.Data) == 0 && len(out.Embedding) > 0 && want == 1 {
		return [][]float32{out.Embedding}, nil
	}
	if len(out.Data) != want {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbedding, want, len(out.Data))
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, want)
	dim := len(out.Data[0].Embedding)
	for i, d := range out.Data {
		if len(d.Embedding) == 0 || len(d.Embedding) != dim {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d", domain.ErrEmbedding, i, len(d.Embedding), dim)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrEmbedding, ctx.Err())
	case <-t.C:
		return nil
	}
}

func (c *Client) retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// exponential backoff capped at 5s
	d := c.backoff << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
