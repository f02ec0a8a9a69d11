package types

import (
	"context"

	"github.com/xhad/verity/internal/models"
)

// Core interfaces

// Embedder matches the embedding surface of langchaingo's ollama.LLM.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type Extractor interface {
	Extract(ctx context.Context, url string) (title, body string)
}

type Engine interface {
	Run(ctx context.Context, title, body string) (models.Inference, error)
	ModelLoaded() bool
}

type Journal interface {
	Record(ctx context.Context, entry models.JournalEntry) error
	Recent(ctx context.Context, limit int) ([]models.JournalEntry, error)
	Close()
}

type Reporter interface {
	Capture(err error, tags map[string]string)
}
