package embedder

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.text))
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, ComputeHash("func main() {}"), ComputeHash("func main() {}"))
	})
}

func TestPrepareText(t *testing.T) {
	assert.Equal(t, " ", PrepareText(""))
	assert.Equal(t, " ", PrepareText(" \t\n"))
	assert.Equal(t, "code", PrepareText("code"))
	assert.Equal(t, "  padded  ", PrepareText("  padded  "))
}

func TestTruncateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 1, EstimateTokenCount("abc"))
	assert.Equal(t, 2, EstimateTokenCount("abcde"))

	assert.Equal(t, "short", TruncateTokens("short", 10))
	assert.Equal(t, "abcdefgh", TruncateTokens("abcdefghijkl", 2))

	// "é" is two bytes; the cut at byte 4 would split it
	got := TruncateTokens("abcéfgh", 1)
	assert.Equal(t, "abc", got)
	assert.True(t, strings.HasPrefix("abcéfgh", got))
}

func TestValidateBatchRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{}), ErrInvalidInput)

	big := make([]string, MaxBatchSize+1)
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: big}), ErrBatchTooLarge)

	// Empty strings are allowed; they are replaced before embedding
	assert.NoError(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"", "x"}}))
}

func TestCache(t *testing.T) {
	t.Run("get and set", func(t *testing.T) {
		cache := NewCache(10)
		emb := &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "h"}

		_, ok := cache.Get("h")
		assert.False(t, ok)

		cache.Set("h", emb)
		got, ok := cache.Get("h")
		require.True(t, ok)
		assert.Equal(t, emb.Vector, got.Vector)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}})

		got, _ := cache.Get("h")
		got.Vector[0] = 99

		again, _ := cache.Get("h")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{})
		cache.Set("b", &Embedding{})
		_, _ = cache.Get("a")
		cache.Set("c", &Embedding{})

		_, okA := cache.Get("a")
		_, okB := cache.Get("b")
		assert.True(t, okA)
		assert.False(t, okB)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	provider := mustNewLocalProvider(t)

	t.Run("dimension and normalization", func(t *testing.T) {
		emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func ParseFile(path string) error"})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, Dimension)
		assert.Equal(t, Dimension, emb.Dimension)
		assert.InDelta(t, 1.0, vectorNorm(emb.Vector), 1e-5)
		assert.Equal(t, ProviderLocal, emb.Provider)
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same text"})
		require.NoError(t, err)
		b, err := NewLocalProvider(nil)
		require.NoError(t, err)
		c, err := b.GenerateEmbedding(ctx, EmbeddingRequest{Text: "same text"})
		require.NoError(t, err)
		assert.Equal(t, a.Vector, c.Vector)
	})

	t.Run("empty and whitespace text", func(t *testing.T) {
		empty, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""})
		require.NoError(t, err)
		space, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "   "})
		require.NoError(t, err)
		assert.Equal(t, empty.Vector, space.Vector)
		assert.InDelta(t, 1.0, vectorNorm(empty.Vector), 1e-5)
	})

	t.Run("shared vocabulary is closer", func(t *testing.T) {
		query, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "database connection pool"})
		related, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "open a database connection"})
		unrelated, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "render purple triangles quickly"})
		assert.Greater(t, dot(query.Vector, related.Vector), dot(query.Vector, unrelated.Vector))
	})

	t.Run("batch preserves order", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"alpha", "beta"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)

		alpha, _ := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "alpha"})
		assert.Equal(t, alpha.Vector, resp.Embeddings[0].Vector)
	})

	t.Run("context cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestNew(t *testing.T) {
	t.Run("default is local", func(t *testing.T) {
		emb, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, Dimension, emb.Dimension())
	})

	t.Run("ollama defaults", func(t *testing.T) {
		emb, err := New(Config{Provider: "Ollama", CacheSize: 10})
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, emb.Provider())
		assert.Equal(t, DefaultOllamaModel, emb.Model())
	})

	t.Run("openai requires key", func(t *testing.T) {
		t.Setenv(EnvOpenAIAPIKey, "")
		_, err := New(Config{Provider: ProviderOpenAI})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("openai key from env", func(t *testing.T) {
		t.Setenv(EnvOpenAIAPIKey, "sk-test")
		emb, err := New(Config{Provider: ProviderOpenAI, Model: "custom"})
		require.NoError(t, err)
		assert.Equal(t, "custom", emb.Model())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "jina"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}

func mustNewLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	provider, err := NewLocalProvider(NewCache(100))
	require.NoError(t, err)
	return provider
}
