package model

import (
	"errors"
	"fmt"
	"math"
)

var ErrDimensionMismatch = errors.New("vector dimension does not match classifier")

// Classifier predicts a class label for one embedding vector.
type Classifier interface {
	Predict(vec []float32) (int, error)
	Dimension() int
}

// ConfidenceClassifier can also report per-class probabilities, ordered like
// Classes().
type ConfidenceClassifier interface {
	Classifier
	Classes() []int
	PredictProba(vec []float32) ([]float64, error)
}

// linear holds the weights shared by both variants. A binary model has a
// single row; otherwise there is one row per class.
type linear struct {
	classes      []int
	coefficients [][]float64
	intercept    []float64
}

func newLinear(classes []int, coefficients [][]float64, intercept []float64) (linear, error) {
	if len(classes) < 2 {
		return linear{}, fmt.Errorf("need at least 2 classes, got %d", len(classes))
	}
	rows := len(classes)
	if rows == 2 {
		rows = 1
	}
	if len(coefficients) != rows {
		return linear{}, fmt.Errorf("expected %d coefficient rows for %d classes, got %d", rows, len(classes), len(coefficients))
	}
	if len(intercept) != rows {
		return linear{}, fmt.Errorf("expected %d intercepts, got %d", rows, len(intercept))
	}
	dim := len(coefficients[0])
	if dim == 0 {
		return linear{}, errors.New("coefficient rows are empty")
	}
	for i, row := range coefficients {
		if len(row) != dim {
			return linear{}, fmt.Errorf("coefficient row %d has %d values, want %d", i, len(row), dim)
		}
	}
	return linear{classes: classes, coefficients: coefficients, intercept: intercept}, nil
}

func (l linear) Dimension() int { return len(l.coefficients[0]) }

func (l linear) Classes() []int { return append([]int(nil), l.classes...) }

func (l linear) decision(vec []float32) ([]float64, error) {
	if len(vec) != l.Dimension() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), l.Dimension())
	}
	scores := make([]float64, len(l.coefficients))
	for i, row := range l.coefficients {
		s := l.intercept[i]
		for j, w := range row {
			s += w * float64(vec[j])
		}
		scores[i] = s
	}
	return scores, nil
}

// pick maps decision scores to a class label.
func (l linear) pick(scores []float64) int {
	if len(scores) == 1 {
		if scores[0] > 0 {
			return l.classes[1]
		}
		return l.classes[0]
	}
	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return l.classes[best]
}

// LinearClassifier is a decision-function-only model such as a linear SVM.
type LinearClassifier struct {
	linear
}

func NewLinearClassifier(classes []int, coefficients [][]float64, intercept []float64) (*LinearClassifier, error) {
	l, err := newLinear(classes, coefficients, intercept)
	if err != nil {
		return nil, err
	}
	return &LinearClassifier{linear: l}, nil
}

func (c *LinearClassifier) Predict(vec []float32) (int, error) {
	scores, err := c.decision(vec)
	if err != nil {
		return 0, err
	}
	return c.pick(scores), nil
}

// LogisticClassifier is a logistic regression: sigmoid for two classes,
// softmax otherwise.
type LogisticClassifier struct {
	linear
}

func NewLogisticClassifier(classes []int, coefficients [][]float64, intercept []float64) (*LogisticClassifier, error) {
	l, err := newLinear(classes, coefficients, intercept)
	if err != nil {
		return nil, err
	}
	return &LogisticClassifier{linear: l}, nil
}

func (c *LogisticClassifier) Predict(vec []float32) (int, error) {
	scores, err := c.decision(vec)
	if err != nil {
		return 0, err
	}
	return c.pick(scores), nil
}

func (c *LogisticClassifier) PredictProba(vec []float32) ([]float64, error) {
	scores, err := c.decision(vec)
	if err != nil {
		return nil, err
	}
	if len(scores) == 1 {
		p := sigmoid(scores[0])
		return []float64{1 - p, p}, nil
	}
	return softmax(scores), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
