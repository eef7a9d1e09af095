package regroup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func words(prefix string, n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = prefix
	}
	return strings.Join(w, " ")
}

func chunk(prefix string, n, page int) domain.RawChunk {
	return domain.RawChunk{
		Text:       words(prefix, n),
		Provenance: []domain.Provenance{{PageNumber: page, Kind: domain.KindText}},
	}
}

var band = Bounds{MinWords: 100, MaxWords: 200, Slack: 50}

func TestRegroup_MergesSmallChunksUntilMin(t *testing.T) {
	in := []domain.RawChunk{
		chunk("a", 40, 1), chunk("b", 40, 1), chunk("c", 40, 2),
		chunk("d", 60, 2), chunk("e", 60, 3),
		chunk("f", 10, 3),
	}

	out := Regroup(in, band)
	require.Len(t, out, 3)

	assert.Equal(t, 120, WordCount(out[0].Text))
	assert.Equal(t, 1, out[0].PageNumber())
	assert.True(t, strings.HasPrefix(out[0].Text, "a a"))

	assert.Equal(t, 120, WordCount(out[1].Text))
	assert.Equal(t, 2, out[1].PageNumber(), "representative is the first chunk of the buffer")

	assert.Equal(t, 10, WordCount(out[2].Text), "last passage may be short")
}

func TestRegroup_OversizedChunkStandsAlone(t *testing.T) {
	in := []domain.RawChunk{chunk("big", 600, 5)}

	out := Regroup(in, band)
	require.Len(t, out, 1)
	assert.Equal(t, 600, WordCount(out[0].Text))
	assert.Equal(t, in[0].Text, out[0].Text)
}

func TestRegroup_OverflowFlushesBufferFirst(t *testing.T) {
	in := []domain.RawChunk{chunk("a", 80, 1), chunk("b", 300, 2), chunk("c", 30, 3)}

	out := Regroup(in, band)
	require.Len(t, out, 3)
	assert.Equal(t, 80, WordCount(out[0].Text))
	assert.Equal(t, 300, WordCount(out[1].Text))
	assert.Equal(t, 2, out[1].PageNumber())
	assert.Equal(t, 30, WordCount(out[2].Text))
}

func TestRegroup_PreservesAllTextInOrder(t *testing.T) {
	var in []domain.RawChunk
	var all []string
	for i, n := range []int{7, 33, 90, 12, 250, 5, 64, 101, 3} {
		c := chunk(string(rune('a'+i)), n, i+1)
		in = append(in, c)
		all = append(all, strings.Fields(c.Text)...)
	}

	out := Regroup(in, band)
	var got []string
	for _, p := range out {
		got = append(got, strings.Fields(p.Text)...)
	}
	assert.Equal(t, all, got)
}

func TestRegroup_BoundsHoldForSmallChunks(t *testing.T) {
	var in []domain.RawChunk
	for i := 0; i < 200; i++ {
		in = append(in, chunk("w", 5+(i*37)%45, i/10+1))
	}

	out := Regroup(in, band)
	require.NotEmpty(t, out)
	for i, p := range out {
		n := WordCount(p.Text)
		assert.LessOrEqual(t, n, band.MaxWords+band.Slack)
		if i < len(out)-1 {
			assert.GreaterOrEqual(t, n, band.MinWords, "passage %d", i)
		}
	}
}

func TestRegroup_Deterministic(t *testing.T) {
	in := []domain.RawChunk{chunk("a", 30, 1), chunk("b", 90, 1), chunk("c", 400, 2), chunk("d", 20, 3)}
	assert.Equal(t, Regroup(in, band), Regroup(in, band))
}

func TestRegroup_SkipsBlankChunksAndEmptyInput(t *testing.T) {
	assert.Empty(t, Regroup(nil, band))
	out := Regroup([]domain.RawChunk{{Text: "   "}, chunk("a", 3, 1)}, band)
	require.Len(t, out, 1)
	assert.Equal(t, "a a a", out[0].Text)
	assert.Equal(t, 1, out[0].PageNumber())
}

func TestRegroup_TablePassage(t *testing.T) {
	table := domain.RawChunk{
		Text:       "| col | val |\n| a | 1 |",
		Provenance: []domain.Provenance{{PageNumber: 7, Kind: domain.KindTable}},
	}
	out := Regroup([]domain.RawChunk{table, chunk("x", 4, 7)}, band)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsTable())
	assert.Equal(t, 7, out[0].PageNumber())
}
