package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dshills/repoindex/internal/retry"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models; both produce Dimension-wide vectors
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "all-minilm"
	DefaultLocalModel  = "feature-hash-384"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434"

	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// apiError is a non-200 response from a provider
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.status, e.body)
}

// retryable reports whether a provider call may succeed on a later attempt
func retryable(err error) bool {
	if errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
	}
	return true
}

// DefaultRetryPolicy returns exponential backoff for provider calls
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: MaxRetries,
		Backoff: retry.Exponential(
			time.Duration(InitialBackoffMs)*time.Millisecond,
			time.Duration(MaxBackoffMs)*time.Millisecond,
			BackoffMultiplier,
		),
		Retryable: retryable,
	}
}

// callFunc sends texts to a provider and returns one raw vector per text
type callFunc func(ctx context.Context, texts []string, model string) ([][]float32, error)

// remoteProvider holds what HTTP-backed providers share: caching,
// retries, dimension checks and normalization
type remoteProvider struct {
	name       string
	model      string
	httpClient *http.Client
	cache      *Cache
	policy     retry.Policy
	call       callFunc
}

func (r *remoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (r *remoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = r.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	hashes := make([]string, len(req.Texts))
	var missTexts []string
	var missIdx []int

	for i, text := range req.Texts {
		text = TruncateTokens(PrepareText(text), MaxInputTokens)
		hashes[i] = ComputeHash(text)
		if r.cache != nil {
			if emb, ok := r.cache.Get(hashes[i]); ok {
				embeddings[i] = emb
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := retry.Do(ctx, r.policy, func(ctx context.Context) ([][]float32, error) {
			return r.callChecked(ctx, missTexts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}

		for j, vec := range vectors {
			i := missIdx[j]
			emb := &Embedding{
				Vector:    NormalizeVector(vec),
				Dimension: Dimension,
				Provider:  r.name,
				Model:     model,
				Hash:      hashes[i],
			}
			embeddings[i] = emb
			if r.cache != nil {
				r.cache.Set(hashes[i], emb)
			}
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   r.name,
		Model:      model,
	}, nil
}

// callChecked calls the provider and validates count and width
func (r *remoteProvider) callChecked(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors, err := r.call(ctx, texts, model)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != Dimension {
			return nil, fmt.Errorf("%w: text %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(vec), Dimension)
		}
	}
	return vectors, nil
}

// postJSON sends body to url and decodes a 200 response into out
func (r *remoteProvider) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &apiError{status: resp.StatusCode, body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *remoteProvider) Dimension() int {
	return Dimension
}

func (r *remoteProvider) Provider() string {
	return r.name
}

func (r *remoteProvider) Model() string {
	return r.model
}

func (r *remoteProvider) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API,
// requesting Dimension-wide output
type OpenAIProvider struct {
	*remoteProvider
	apiKey  string
	baseURL string
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	o := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(orDefault(cfg.BaseURL, DefaultOpenAIBaseURL), "/"),
	}
	o.remoteProvider = &remoteProvider{
		name:  ProviderOpenAI,
		model: orDefault(cfg.Model, DefaultOpenAIModel),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:  cache,
		policy: DefaultRetryPolicy(),
		call:   o.callAPI,
	}
	return o, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input":      texts,
		"model":      model,
		"dimensions": Dimension,
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}

	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := o.postJSON(ctx, o.baseURL+"/embeddings", headers, reqBody, &apiResp); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = data.Embedding
	}
	return vectors, nil
}

// OllamaProvider calls the Ollama /api/embed endpoint
type OllamaProvider struct {
	*remoteProvider
	baseURL string
}

// NewOllamaProvider creates an embedder targeting the given Ollama instance
func NewOllamaProvider(cfg Config, cache *Cache) (*OllamaProvider, error) {
	o := &OllamaProvider{
		baseURL: strings.TrimRight(orDefault(cfg.BaseURL, DefaultOllamaBaseURL), "/"),
	}
	o.remoteProvider = &remoteProvider{
		name:  ProviderOllama,
		model: orDefault(cfg.Model, DefaultOllamaModel),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		cache:  cache,
		policy: DefaultRetryPolicy(),
		call:   o.callAPI,
	}
	return o, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	var result ollamaEmbedResponse
	err := o.postJSON(ctx, o.baseURL+"/api/embed", nil, ollamaEmbedRequest{
		Model: model,
		Input: texts,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
