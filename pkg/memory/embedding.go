package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EmbeddingProvider converts text to a fixed-dimension vector. Providers cross
// a network or process boundary and may fail; callers must treat failure as a
// signal to fall back to keyword scoring, never as a hard error.
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// OpenAIProvider implements EmbeddingProvider against the OpenAI embeddings
// API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider creates an OpenAI embedding provider. A dimension of 0
// uses the model's native size; the text-embedding-3 models accept smaller
// requested dimensions.
func NewOpenAIProvider(apiKey, model string, dimension int) *OpenAIProvider {
	if dimension <= 0 {
		dimension = 1536 // text-embedding-3-small
		if model == "text-embedding-3-large" {
			dimension = 3072
		}
	}
	return &OpenAIProvider{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		dimension: dimension,
	}
}

func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: openai.Int(int64(p.dimension)),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}

	embedding := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// OllamaProvider implements EmbeddingProvider against a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewOllamaProvider creates an Ollama embedding provider. nomic-embed-text
// produces 768-dimensional vectors.
func NewOllamaProvider(baseURL, model string, dimension int) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &OllamaProvider{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]any{
		"model": p.model,
		"input": text,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	if len(result.Embeddings[0]) != p.dimension {
		return nil, fmt.Errorf("ollama returned dimension %d, expected %d", len(result.Embeddings[0]), p.dimension)
	}
	return result.Embeddings[0], nil
}
