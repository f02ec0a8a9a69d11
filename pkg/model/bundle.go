package model

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xhad/verity/internal/types"
	"github.com/xhad/verity/pkg/llm"
	"gopkg.in/yaml.v3"
)

var ErrBundleNotFound = errors.New("model bundle not found")

// File is the on-disk bundle layout. JSON files parse too.
type File struct {
	Embedding struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`

	Classifier struct {
		Kind         string      `yaml:"kind"`
		Classes      []int       `yaml:"classes"`
		Coefficients [][]float64 `yaml:"coefficients"`
		Intercept    []float64   `yaml:"intercept"`
	} `yaml:"classifier"`
}

// Bundle pairs an embedder with the classifier trained on its vectors. It is
// immutable once built and safe to share.
type Bundle struct {
	embedder   types.Embedder
	classifier Classifier
	confident  ConfidenceClassifier
}

// NewBundle resolves the classifier's confidence capability once.
func NewBundle(embedder types.Embedder, classifier Classifier) (*Bundle, error) {
	if embedder == nil || classifier == nil {
		return nil, errors.New("bundle needs both an embedder and a classifier")
	}
	b := &Bundle{embedder: embedder, classifier: classifier}
	if c, ok := classifier.(ConfidenceClassifier); ok {
		b.confident = c
	}
	return b, nil
}

func (b *Bundle) Embedder() types.Embedder { return b.embedder }

func (b *Bundle) Classifier() Classifier { return b.classifier }

// Confidence returns the classifier's probability surface, if it has one.
func (b *Bundle) Confidence() (ConfidenceClassifier, bool) {
	return b.confident, b.confident != nil
}

func (b *Bundle) Dimension() int { return b.classifier.Dimension() }

// Verify embeds a probe sentence and checks the vector fits the classifier.
func (b *Bundle) Verify(ctx context.Context) error {
	vec, err := llm.EmbedOne(ctx, b.embedder, "model bundle verification probe")
	if err != nil {
		return err
	}
	if len(vec) != b.Dimension() {
		return fmt.Errorf("%w: embedder produced %d values, classifier expects %d", ErrDimensionMismatch, len(vec), b.Dimension())
	}
	return nil
}

type LoadOptions struct {
	// OllamaURL overrides the bundle's embedding base_url when set.
	OllamaURL string
	// NewEmbedder builds the embedder; defaults to the Ollama embedder.
	NewEmbedder func(config llm.EmbedderConfig) (types.Embedder, error)
}

// Load reads a bundle file. A missing file yields ErrBundleNotFound; any other
// error means the file exists but cannot be used.
func Load(path string, opts LoadOptions) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading model bundle: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing model bundle: %w", err)
	}

	return file.Build(opts)
}

// Build constructs the bundle described by f.
func (f File) Build(opts LoadOptions) (*Bundle, error) {
	classifier, err := f.classifier()
	if err != nil {
		return nil, fmt.Errorf("invalid classifier: %w", err)
	}
	if f.Embedding.Dimension != 0 && f.Embedding.Dimension != classifier.Dimension() {
		return nil, fmt.Errorf("%w: embedding dimension %d, classifier expects %d",
			ErrDimensionMismatch, f.Embedding.Dimension, classifier.Dimension())
	}

	switch f.Embedding.Provider {
	case "", "ollama":
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", f.Embedding.Provider)
	}

	config := llm.EmbedderConfig{
		Model:   f.Embedding.Model,
		BaseURL: f.Embedding.BaseURL,
	}
	if opts.OllamaURL != "" {
		config.BaseURL = opts.OllamaURL
	}

	newEmbedder := opts.NewEmbedder
	if newEmbedder == nil {
		newEmbedder = func(c llm.EmbedderConfig) (types.Embedder, error) {
			return llm.NewEmbedderWithConfig(c)
		}
	}
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	return NewBundle(embedder, classifier)
}

func (f File) classifier() (Classifier, error) {
	c := f.Classifier
	switch c.Kind {
	case "", "logistic":
		return NewLogisticClassifier(c.Classes, c.Coefficients, c.Intercept)
	case "linear", "svm":
		return NewLinearClassifier(c.Classes, c.Coefficients, c.Intercept)
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", c.Kind)
	}
}
