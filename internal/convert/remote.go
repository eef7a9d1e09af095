package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"wikirag/internal/domain"
)

// Remote delegates conversion and chunking to an HTTP document service.
//
// Request:  POST {url}/convert?max_tokens=N&merge_peers=true, multipart field "file".
// Response: {"chunks":[{"text":"...","provenance":[{"page_no":1,"label":"table"}]}]}
type Remote struct {
	url       string
	maxTokens int
	client    *http.Client
}

// RemoteConfig configures the conversion service client.
type RemoteConfig struct {
	URL       string
	MaxTokens int
	Timeout   time.Duration
}

func NewRemote(cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Remote{url: cfg.URL, maxTokens: cfg.MaxTokens, client: &http.Client{Timeout: timeout}}
}

type remoteResponse struct {
	Chunks []struct {
		Text       string              `json:"text"`
		Provenance []domain.Provenance `json:"provenance"`
	} `json:"chunks"`
	Error string `json:"error,omitempty"`
}

// Convert implements domain.Converter.
func (r *Remote) Convert(ctx context.Context, path string) ([]domain.RawChunk, error) {
	body, contentType, err := multipartFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConversion, err)
	}
	q := url.Values{}
	q.Set("merge_peers", "true")
	if r.maxTokens > 0 {
		q.Set("max_tokens", strconv.Itoa(r.maxTokens))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/convert?"+q.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrConversion, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", domain.ErrConversion, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrConversion, err)
	}
	var out remoteResponse
	if err := json.Unmarshal(payload, &out); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrConversion, err)
	}
	if resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%w: convert %s: %s", domain.ErrConversion, filepath.Base(path), msg)
	}
	chunks := make([]domain.RawChunk, 0, len(out.Chunks))
	for _, c := range out.Chunks {
		chunks = append(chunks, domain.RawChunk{Text: c.Text, Provenance: c.Provenance})
	}
	return chunks, nil
}

func multipartFile(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
