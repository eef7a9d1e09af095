package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/config"
	"wikirag/internal/convert"
	"wikirag/internal/domain"
	"wikirag/internal/ingest"
	"wikirag/internal/vectorstore/memory"
)

// embeddingServer returns a 3-dimensional vector per input.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var resp struct {
			Data []item `json:"data"`
		}
		for i, s := range req.Input {
			resp.Data = append(resp.Data, item{Index: i, Embedding: []float32{float32(len(s)), 1, 0.5}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, embURL string) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Source.Root = filepath.Join(dir, "wiki")
	cfg.VectorStore = config.VectorStoreConfig{Type: "memory"}
	cfg.Manifest = config.ManifestConfig{Driver: "sqlite", Path: filepath.Join(dir, "manifest.db")}
	cfg.Embedder.OpenAI.BaseURL = embURL
	cfg.Embedder.OpenAI.TaskMode = "none"
	cfg.Regroup = config.RegroupConfig{MinWords: 1, MaxWords: 500}
	return cfg
}

func TestBuild_IngestEndToEnd(t *testing.T) {
	srv := embeddingServer(t)
	cfg := testConfig(t, srv.URL)

	doc := filepath.Join(cfg.Source.Root, "niveau1-usagers", "guide.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(doc), 0o755))
	require.NoError(t, os.WriteFile(doc, []byte("# Accueil\n\nLe guichet ouvre à 9h.\n"), 0o644))

	a, err := Build(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	require.NoError(t, a.Bootstrap(ctx))

	sum, err := a.Controller.Run(ctx, a.Source(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ingested)

	pts := a.Index.(*memory.Storage).Points("wiki_usagers")
	require.NotEmpty(t, pts)
	abs, _ := filepath.Abs(doc)
	assert.Equal(t, abs, pts[0].Payload.FilePath)

	recs, err := a.Store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "wiki_usagers", recs[0].Collection)

	out := a.Controller.Process(ctx, doc)
	assert.Equal(t, ingest.StatusSkipped, out.Status)
}

func TestBuild_RejectsUnknownComponents(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.VectorStore.Type = "faiss"
	_, err := Build(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.Converter.Type = "remote"
	_, err = Build(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.Embedder.Type = "tfidf"
	_, err = Build(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = testConfig(t, "http://127.0.0.1:1")
	cfg.Manifest.Driver = "redis"
	_, err = Build(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestBootstrap_CreatesEveryCollection(t *testing.T) {
	srv := embeddingServer(t)
	a, err := Build(testConfig(t, srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.Bootstrap(context.Background()))
	idx := a.Index.(*memory.Storage)
	assert.NoError(t, idx.EnsureCollection(context.Background(), "wiki_direction", 3))
	assert.ErrorIs(t, idx.EnsureCollection(context.Background(), "wiki_usagers", 4), domain.ErrIndex)
}

func TestDefaultSourceOnlyAcceptsConvertibleFiles(t *testing.T) {
	a, err := Build(testConfig(t, "http://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	src := a.Source()
	assert.False(t, src.Accepts("wiki/niveau1-usagers/guide.pdf"))

	local := convert.NewLocal(0)
	office := convert.NewOffice("", 0)
	for _, ext := range src.Extensions {
		name := "file" + ext
		convertible := local.Supports(name) || (office.Needs(name) && local.Supports(name+"x"))
		assert.True(t, convertible, "%s is accepted but cannot be converted locally", ext)
	}
}
