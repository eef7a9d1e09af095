package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func stores(t *testing.T) map[string]domain.FingerprintStore {
	t.Helper()
	dir := t.TempDir()
	sq, err := NewSQLiteStore(filepath.Join(dir, "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]domain.FingerprintStore{
		"json":   NewJSONStore(filepath.Join(dir, "manifest.json")),
		"sqlite": sq,
	}
}

func TestStore_GetPutList(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := s.Get(ctx, "wiki/a.pdf")
			require.NoError(t, err)
			assert.Nil(t, rec, "missing record")

			require.NoError(t, s.Put(ctx, domain.FingerprintRecord{
				FilePath: "wiki/b.docx", Hash: "h1", IngestedAt: at, ChunksCount: 3, Collection: "wiki_usagers",
			}))
			require.NoError(t, s.Put(ctx, domain.FingerprintRecord{
				FilePath: "wiki/a.pdf", Hash: "h2", IngestedAt: at, ChunksCount: 1, Collection: "wiki_direction",
			}))
			require.NoError(t, s.Put(ctx, domain.FingerprintRecord{
				FilePath: "wiki/b.docx", Hash: "h3", IngestedAt: at.Add(time.Hour), ChunksCount: 5, Collection: "wiki_usagers",
			}))

			rec, err = s.Get(ctx, "wiki/b.docx")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, "h3", rec.Hash)
			assert.Equal(t, 5, rec.ChunksCount)
			assert.True(t, rec.IngestedAt.Equal(at.Add(time.Hour)))
			assert.Equal(t, "b.docx", rec.FileName())

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "wiki/a.pdf", all[0].FilePath)
			assert.Equal(t, "wiki_direction", all[0].Collection)
			assert.Equal(t, "wiki/b.docx", all[1].FilePath)
		})
	}
}

func TestStore_ConcurrentPutsAreNotLost(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, s.Put(ctx, domain.FingerprintRecord{
						FilePath: fmt.Sprintf("wiki/%02d.txt", i), Hash: "h", IngestedAt: time.Now(), ChunksCount: 1, Collection: "c",
					}))
				}(i)
			}
			wg.Wait()

			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 20)
		})
	}
}

func TestJSONStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "manifest.json")
	s := NewJSONStore(path)
	require.NoError(t, s.Put(context.Background(), domain.FingerprintRecord{
		FilePath: "wiki/a.pdf", Hash: "abc", IngestedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ChunksCount: 2, Collection: "wiki_usagers",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"wiki/a.pdf":{"hash":"abc","ingested_at":"2024-01-02T03:04:05Z","chunks_count":2,"collection":"wiki_usagers"}}`, string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestJSONStore_ReadsNaiveTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"wiki/a.pdf":{"hash":"abc","ingested_at":"2024-03-05T08:30:00.123456","chunks_count":4,"collection":"wiki_usagers"}}`), 0o644))

	rec, err := NewJSONStore(path).Get(context.Background(), "wiki/a.pdf")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2024, rec.IngestedAt.Year())
	assert.Equal(t, 8, rec.IngestedAt.Hour())
	assert.Equal(t, 4, rec.ChunksCount)
}

func TestJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	s := NewJSONStore(path)
	_, err := s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrManifestIO)
	err = s.Put(context.Background(), domain.FingerprintRecord{FilePath: "x"})
	assert.ErrorIs(t, err, domain.ErrManifestIO)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open("json", filepath.Join(dir, "m.json"))
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "m.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
