package embedder

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

var localTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// LocalProvider embeds offline by feature hashing: each token and its
// character trigrams are hashed into a signed bucket, the bucket vectors
// are mean-pooled and L2-normalized. Texts sharing vocabulary land close.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := PrepareText(req.Text)
	hash := ComputeHash(text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    hashEmbed(text),
		Dimension: Dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	if l.cache != nil {
		l.cache.Set(hash, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return Dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashEmbed builds the feature-hashed, normalized vector for text
func hashEmbed(text string) []float32 {
	vector := make([]float32, Dimension)

	tokens := localTokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		// No word characters: the raw text is the only feature
		addFeature(vector, text, 1)
		return NormalizeVector(vector)
	}

	for _, tok := range tokens {
		addFeature(vector, tok, 1)
		if len(tok) > 3 {
			padded := "#" + tok + "#"
			for i := 0; i+3 <= len(padded); i++ {
				addFeature(vector, padded[i:i+3], 0.5)
			}
		}
	}

	// Mean-pool over tokens
	n := float32(len(tokens))
	for i := range vector {
		vector[i] /= n
	}

	return NormalizeVector(vector)
}

// addFeature adds weight to the signed bucket of feature
func addFeature(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := sum % uint64(len(vector))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[bucket] += weight
}
