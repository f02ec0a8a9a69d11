package models

import "time"

// Labels emitted by the engine.
const (
	LabelReal    = "REAL"
	LabelFake    = "FAKE"
	LabelUnknown = "UNKNOWN"
)

// RawInput is what a caller hands to the pipeline. Any field may be empty.
type RawInput struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Body  string `json:"text"`
}

// Article is the title/body pair produced by URL extraction.
type Article struct {
	URL   string
	Title string
	Body  string
}

func (a Article) Empty() bool {
	return a.Title == "" && a.Body == ""
}

type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Inference is the engine's full answer. Embedding is nil in heuristic mode.
type Inference struct {
	Prediction
	Mode      string
	Embedding []float32
}

// Outcome is an inference together with the (possibly URL-filled) input it was
// computed from.
type Outcome struct {
	Input RawInput
	Inference
}

// JournalEntry is one row of the prediction journal.
type JournalEntry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Label       string    `json:"label"`
	Probability float64   `json:"probability"`
	Mode        string    `json:"mode"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Headline is a feed item with its prediction attached.
type Headline struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"-"`
	Published   *time.Time `json:"published,omitempty"`
	Label       string     `json:"label,omitempty"`
	Probability float64    `json:"probability"`
}
