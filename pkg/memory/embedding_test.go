package memory

import (
	"context"
	"fmt"
)

// mockProvider generates deterministic embeddings from a text hash.
type mockProvider struct {
	dimension int
}

func newMockProvider(dimension int) *mockProvider {
	return &mockProvider{dimension: dimension}
}

func (p *mockProvider) Dimension() int {
	return p.dimension
}

func (p *mockProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, p.dimension)
	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}
	for i := 0; i < p.dimension; i++ {
		embedding[i] = float32((hash+i)%100) / 100.0
	}
	return embedding, nil
}

// fixedProvider returns preset vectors for known texts so tests can control
// similarity exactly. Unknown texts get a far-away default vector.
type fixedProvider struct {
	dimension int
	vectors   map[string][]float32
}

func newFixedProvider(dimension int) *fixedProvider {
	return &fixedProvider{dimension: dimension, vectors: make(map[string][]float32)}
}

func (p *fixedProvider) set(text string, vector []float32) {
	p.vectors[text] = vector
}

func (p *fixedProvider) Dimension() int {
	return p.dimension
}

func (p *fixedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, p.dimension)
	v[p.dimension-1] = 1
	return v, nil
}

// failingProvider simulates an unreachable embedding service.
type failingProvider struct {
	dimension int
}

func (p *failingProvider) Dimension() int {
	return p.dimension
}

func (p *failingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding service unavailable")
}
