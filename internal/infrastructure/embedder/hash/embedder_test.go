package hash

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimensions, e.Dimensions())

	a, err := e.Embed(ctx, "Alice trusts Bob")
	require.NoError(t, err)
	b, err := NewEmbedder(64).Embed(ctx, "alice, TRUSTS bob!")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "case and punctuation do not change the vector")
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
}

func TestEmbedder_SharedWordsAreCloser(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder(256)

	vectors, err := e.EmbedBatch(ctx, []string{
		"Alice trusts Bob",
		"does Alice trust Bob",
		"heavy rain over the harbour",
	})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
}

func TestEmbedder_EmptyText(t *testing.T) {
	v, err := NewEmbedder(8).Embed(context.Background(), "  ...  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestEmbedder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbedder(8).EmbedBatch(ctx, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
}
