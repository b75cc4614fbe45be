package match

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/scanner/internal/domain"
)

const testDim = 16

func randomUnitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		v[i] = float32(rng.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func buildTestIndex(t *testing.T, n int) (*Index, [][]float32) {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	ix := NewIndex(testDim, 64)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		vecs[i] = randomUnitVector(rng, testDim)
		err := ix.Add(vecs[i], ReferenceMeta{
			CardID:    fmt.Sprintf("base1-%d", i),
			ImagePath: fmt.Sprintf("ref/base1-%d.png", i),
		})
		require.NoError(t, err)
	}
	return ix, vecs
}

func TestSearch_EmptyIndex(t *testing.T) {
	ix := NewIndex(testDim, 64)
	hits, err := ix.Search(make([]float32, testDim), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_KMustBePositive(t *testing.T) {
	ix, vecs := buildTestIndex(t, 10)
	_, err := ix.Search(vecs[0], 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix, _ := buildTestIndex(t, 10)
	_, err := ix.Search(make([]float32, testDim+1), 5)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSearch_IdenticalEmbeddingIsTopHit(t *testing.T) {
	ix, vecs := buildTestIndex(t, 80)

	for _, probe := range []int{0, 13, 79} {
		hits, err := ix.Search(vecs[probe], 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, fmt.Sprintf("base1-%d", probe), hits[0].CardID)
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-5)
	}
}

func TestSearch_OrderedAndBounded(t *testing.T) {
	ix, _ := buildTestIndex(t, 80)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 10; trial++ {
		query := randomUnitVector(rng, testDim)
		hits, err := ix.Search(query, 10)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), 10)
		for i := 1; i < len(hits); i++ {
			assert.GreaterOrEqual(t, hits[i].Distance, hits[i-1].Distance,
				"results must be non-decreasing by distance")
		}
	}
}

func TestSearch_NeverInventsCandidates(t *testing.T) {
	ix, vecs := buildTestIndex(t, 30)

	known := make(map[string]bool)
	for i := range vecs {
		known[fmt.Sprintf("base1-%d", i)] = true
	}

	hits, err := ix.Search(vecs[3], 30)
	require.NoError(t, err)
	for _, h := range hits {
		assert.True(t, known[h.CardID], "hit %s not present at build time", h.CardID)
	}
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	ix, vecs := buildTestIndex(t, 40)
	dir := t.TempDir()
	require.NoError(t, ix.Save(dir))

	loaded, err := LoadIndex(dir, 64)
	require.NoError(t, err)
	assert.Equal(t, ix.Len(), loaded.Len())
	assert.Equal(t, testDim, loaded.Dim())

	want, err := ix.Search(vecs[11], 5)
	require.NoError(t, err)
	got, err := loaded.Search(vecs[11], 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadIndex_MissingArtifacts(t *testing.T) {
	_, err := LoadIndex(t.TempDir(), 64)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix := NewIndex(testDim, 64)
	err := ix.Add(make([]float32, 3), ReferenceMeta{CardID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
