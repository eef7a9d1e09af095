package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func pt(path string, idx int, vec ...float32) domain.Point {
	return domain.Point{
		ID:      domain.PointID(path, idx),
		Vector:  vec,
		Payload: domain.PassagePayload{FilePath: path, ChunkIndex: idx, Text: path},
	}
}

func TestStorage_UpsertOverwritesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.EnsureCollection(ctx, "c", 2))
	require.NoError(t, s.EnsureCollection(ctx, "c", 2), "idempotent")

	require.NoError(t, s.Upsert(ctx, "c", []domain.Point{pt("a", 0, 1, 0), pt("a", 1, 0, 1)}))
	require.NoError(t, s.Upsert(ctx, "c", []domain.Point{pt("a", 0, 0.5, 0.5)}))

	points := s.Points("c")
	require.Len(t, points, 2)
	assert.Equal(t, []float32{0.5, 0.5}, points[0].Vector)
}

func TestStorage_DimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.EnsureCollection(ctx, "c", 2))
	assert.ErrorIs(t, s.EnsureCollection(ctx, "c", 3), domain.ErrIndex)
	assert.ErrorIs(t, s.EnsureCollection(ctx, "d", 0), domain.ErrIndex)
	assert.ErrorIs(t, s.Upsert(ctx, "c", []domain.Point{pt("a", 0, 1, 2, 3)}), domain.ErrIndex)
	assert.ErrorIs(t, s.Upsert(ctx, "missing", nil), domain.ErrIndex)
	assert.Empty(t, s.Points("c"))
}

func TestStorage_DeleteByFileAndMinIndex(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.EnsureCollection(ctx, "c", 1))
	require.NoError(t, s.Upsert(ctx, "c", []domain.Point{
		pt("a", 0, 1), pt("a", 1, 1), pt("a", 2, 1), pt("b", 0, 1), pt("b", 5, 1),
	}))

	require.NoError(t, s.Delete(ctx, "c", domain.FileFilter{FilePath: "a", MinChunkIndex: 1}))
	points := s.Points("c")
	require.Len(t, points, 3)
	assert.Equal(t, "a", points[0].Payload.FilePath)
	assert.Equal(t, 0, points[0].Payload.ChunkIndex)

	require.NoError(t, s.Delete(ctx, "c", domain.FileFilter{FilePath: "b"}))
	assert.Len(t, s.Points("c"), 1)

	assert.NoError(t, s.Delete(ctx, "unknown", domain.FileFilter{FilePath: "a"}))
}

func TestStorage_SearchRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.EnsureCollection(ctx, "c", 2))
	require.NoError(t, s.Upsert(ctx, "c", []domain.Point{
		pt("x", 0, 1, 0), pt("y", 0, 0, 1), pt("z", 0, 1, 1),
	}))

	hits, err := s.Search(ctx, "c", []float32{2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x", hits[0].Payload.FilePath)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "z", hits[1].Payload.FilePath)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-4)

	_, err = s.Search(ctx, "missing", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrIndex)
}
