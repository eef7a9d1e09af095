package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointID_KnownValues(t *testing.T) {
	assert.Equal(t, uint64(6668176057529408), PointID("wiki/niveau1-usagers/guide.pdf", 0))
	assert.Equal(t, uint64(136742379987463844), PointID("wiki/niveau1-usagers/guide.pdf", 1))
	assert.Equal(t, uint64(966825612432745465), PointID("/data/wiki/a.docx", 7))
}

func TestPointID_StableAndDistinct(t *testing.T) {
	seen := make(map[uint64]struct{})
	for i := 0; i < 500; i++ {
		id := PointID("wiki/niveau2-direction/rapport.docx", i)
		assert.Equal(t, id, PointID("wiki/niveau2-direction/rapport.docx", i))
		assert.Less(t, id, uint64(1_000_000_000_000_000_000))
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 500)
	assert.NotEqual(t, PointID("a.pdf", 1), PointID("b.pdf", 1))
}
