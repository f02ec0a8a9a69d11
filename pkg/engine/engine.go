package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/internal/types"
	"github.com/xhad/verity/pkg/llm"
	"github.com/xhad/verity/pkg/model"
	"github.com/xhad/verity/pkg/processor"
)

const (
	ModeModel     = "model"
	ModeHeuristic = "heuristic"
)

// ErrInconsistentBundle wraps embedder and classifier failures. The bundle is
// validated at load time, so these indicate a broken deployment.
var ErrInconsistentBundle = errors.New("model bundle is inconsistent")

var labels = map[int]string{
	0: models.LabelFake,
	1: models.LabelReal,
}

type Normalizer interface {
	Normalize(text string) string
}

// Engine classifies title/body pairs. With a nil bundle it runs in heuristic
// mode for its whole lifetime.
type Engine struct {
	bundle     *model.Bundle
	normalizer Normalizer
	confident  model.ConfidenceClassifier
}

var _ types.Engine = (*Engine)(nil)

func New(bundle *model.Bundle) *Engine {
	return NewWithNormalizer(bundle, processor.Default())
}

func NewWithNormalizer(bundle *model.Bundle, normalizer Normalizer) *Engine {
	e := &Engine{bundle: bundle, normalizer: normalizer}
	if bundle != nil {
		e.confident, _ = bundle.Confidence()
	}
	return e
}

func (e *Engine) ModelLoaded() bool { return e.bundle != nil }

func (e *Engine) Mode() string {
	if e.bundle == nil {
		return ModeHeuristic
	}
	return ModeModel
}

// Classify returns the label and probability for title and body.
func (e *Engine) Classify(ctx context.Context, title, body string) (models.Prediction, error) {
	inference, err := e.Run(ctx, title, body)
	return inference.Prediction, err
}

func (e *Engine) Run(ctx context.Context, title, body string) (models.Inference, error) {
	text := e.normalizer.Normalize(title + " " + body)

	if e.bundle == nil {
		return models.Inference{Prediction: Heuristic(text), Mode: ModeHeuristic}, nil
	}

	vec, err := llm.EmbedOne(ctx, e.bundle.Embedder(), text)
	if err != nil {
		return models.Inference{}, fmt.Errorf("%w: %v", ErrInconsistentBundle, err)
	}

	class, err := e.bundle.Classifier().Predict(vec)
	if err != nil {
		return models.Inference{}, fmt.Errorf("%w: %v", ErrInconsistentBundle, err)
	}

	probability := 1.0
	if e.confident != nil {
		probability, err = e.classProbability(vec, class)
		if err != nil {
			return models.Inference{}, fmt.Errorf("%w: %v", ErrInconsistentBundle, err)
		}
	}

	return models.Inference{
		Prediction: models.Prediction{Label: Label(class), Probability: probability},
		Mode:       ModeModel,
		Embedding:  vec,
	}, nil
}

func (e *Engine) classProbability(vec []float32, class int) (float64, error) {
	probs, err := e.confident.PredictProba(vec)
	if err != nil {
		return 0, err
	}
	for i, c := range e.confident.Classes() {
		if c == class && i < len(probs) {
			if math.IsNaN(probs[i]) {
				return 0, fmt.Errorf("class %d probability is NaN", class)
			}
			return clamp(probs[i]), nil
		}
	}
	return 0, fmt.Errorf("class %d missing from probability output", class)
}

// Label maps a class index to its label.
func Label(class int) string {
	if l, ok := labels[class]; ok {
		return l
	}
	return models.LabelUnknown
}

// Heuristic is the placeholder used when no model is loaded. It looks only at
// the token count and says nothing about the content.
func Heuristic(normalized string) models.Prediction {
	score := float64(processor.WordCount(normalized)%7) / 6.0
	score = math.Round(score*1000) / 1000

	label := models.LabelFake
	if score >= 0.5 {
		label = models.LabelReal
	}
	return models.Prediction{Label: label, Probability: score}
}

func clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
