// Package embedder generates fixed-width vector embeddings for file contents
// and search queries.
//
// Every provider returns Dimension (384) wide, L2-normalized vectors, so
// the vector store never has to reconcile widths. Empty or whitespace-only
// text is replaced by a single space before embedding.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "func ParseFile(path string) error { ... }",
//	})
//
// # Providers
//
//   - local: offline feature hashing over tokens and character trigrams.
//     Deterministic and dependency-free; the default.
//   - ollama: POST {base_url}/api/embed, default model all-minilm.
//   - openai: POST {base_url}/embeddings with dimensions=384, key from
//     config or OPENAI_API_KEY.
//
// Remote providers retry transient failures (network errors, 429, 5xx)
// with exponential backoff and reject responses of the wrong width with
// ErrDimensionMismatch.
//
// # Caching
//
// Embeddings are cached in an LRU keyed by the SHA-256 of the prepared
// text. Cached vectors are returned as copies.
package embedder
