// Package pipeline fills missing input from a URL, classifies it and journals
// the result. Every surface (form, JSON, websocket, CLI) goes through it.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/internal/types"
)

var ErrMissingInput = errors.New("no title, text or usable URL provided")

type Pipeline struct {
	extractor types.Extractor
	engine    types.Engine
	journal   types.Journal
	now       func() time.Time
}

// New wires a pipeline. journal may be nil.
func New(extractor types.Extractor, engine types.Engine, journal types.Journal) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		engine:    engine,
		journal:   journal,
		now:       time.Now,
	}
}

func (p *Pipeline) ModelLoaded() bool { return p.engine.ModelLoaded() }

func (p *Pipeline) Journal() types.Journal { return p.journal }

// Resolve trims the input and, when a URL is given and title or body is
// missing, fills only the missing fields from the page.
func (p *Pipeline) Resolve(ctx context.Context, in models.RawInput) models.RawInput {
	in.URL = strings.TrimSpace(in.URL)
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)

	if in.URL != "" && (in.Title == "" || in.Body == "") {
		title, body := p.extractor.Extract(ctx, in.URL)
		if in.Title == "" {
			in.Title = title
		}
		if in.Body == "" {
			in.Body = body
		}
	}
	return in
}

// Predict resolves the input and classifies it. ErrMissingInput is returned
// when title and body are both empty after resolution.
func (p *Pipeline) Predict(ctx context.Context, in models.RawInput) (models.Outcome, error) {
	in = p.Resolve(ctx, in)
	if in.Title == "" && in.Body == "" {
		return models.Outcome{Input: in}, ErrMissingInput
	}

	inference, err := p.engine.Run(ctx, in.Title, in.Body)
	if err != nil {
		return models.Outcome{Input: in}, err
	}

	outcome := models.Outcome{Input: in, Inference: inference}
	p.record(ctx, outcome)
	return outcome, nil
}

func (p *Pipeline) record(ctx context.Context, outcome models.Outcome) {
	if p.journal == nil {
		return
	}
	entry := models.JournalEntry{
		ID:          uuid.NewString(),
		URL:         outcome.Input.URL,
		Title:       outcome.Input.Title,
		Label:       outcome.Label,
		Probability: outcome.Probability,
		Mode:        outcome.Mode,
		Embedding:   outcome.Embedding,
		CreatedAt:   p.now().UTC(),
	}
	if err := p.journal.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Str("id", entry.ID).Msg("failed to journal prediction")
	}
}
