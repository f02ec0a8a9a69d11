package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/verity/internal/types"
)

// EmbedderConfig represents the configuration for a sentence embedder.
type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Embedder produces sentence embeddings through an Ollama server.
type Embedder struct {
	Config EmbedderConfig
	Embed  types.Embedder
}

var ErrNoEmbedding = errors.New("embedder returned no vectors")

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		Config: config,
		Embed:  emb,
	}, nil
}

func NewEmbedder() (*Embedder, error) {
	return NewEmbedderWithConfig(EmbedderConfig{})
}

func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return e.Embed.CreateEmbedding(ctx, texts)
}

// EmbedOne encodes a single text into one vector.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return EmbedOne(ctx, e.Embed, text)
}

// EmbedOne encodes text with any embedder and returns the flattened vector.
func EmbedOne(ctx context.Context, emb types.Embedder, text string) ([]float32, error) {
	embeddings, err := emb.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	vector := FlattenEmbeddings(embeddings)
	if len(vector) == 0 {
		return nil, ErrNoEmbedding
	}
	return vector, nil
}

func FlattenEmbeddings(embeddings [][]float32) []float32 {
	var flattened []float32
	for _, emb := range embeddings {
		flattened = append(flattened, emb...)
	}
	return flattened
}
