package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/pkg/engine"
)

type fakeExtractor struct {
	title, body string
	calls       []string
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (string, string) {
	f.calls = append(f.calls, url)
	return f.title, f.body
}

type fakeEngine struct {
	inference models.Inference
	err       error
	gotTitle  string
	gotBody   string
}

func (f *fakeEngine) Run(ctx context.Context, title, body string) (models.Inference, error) {
	f.gotTitle, f.gotBody = title, body
	return f.inference, f.err
}

func (f *fakeEngine) ModelLoaded() bool { return false }

type memoryJournal struct {
	entries []models.JournalEntry
	err     error
}

func (m *memoryJournal) Record(ctx context.Context, e models.JournalEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryJournal) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	return m.entries, nil
}

func (m *memoryJournal) Close() {}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		in        models.RawInput
		want      models.RawInput
		extracted bool
	}{
		{
			name: "no url",
			in:   models.RawInput{Title: "  Title ", Body: ""},
			want: models.RawInput{Title: "Title"},
		},
		{
			name: "url with both fields keeps input",
			in:   models.RawInput{URL: "https://x", Title: "T", Body: "B"},
			want: models.RawInput{URL: "https://x", Title: "T", Body: "B"},
		},
		{
			name:      "url fills missing body only",
			in:        models.RawInput{URL: " https://x ", Title: "Mine"},
			want:      models.RawInput{URL: "https://x", Title: "Mine", Body: "page body"},
			extracted: true,
		},
		{
			name:      "url fills both",
			in:        models.RawInput{URL: "https://x"},
			want:      models.RawInput{URL: "https://x", Title: "page title", Body: "page body"},
			extracted: true,
		},
		{
			name: "blank url is ignored",
			in:   models.RawInput{URL: "   ", Body: "text"},
			want: models.RawInput{Body: "text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &fakeExtractor{title: "page title", body: "page body"}
			p := New(ext, &fakeEngine{}, nil)

			got := p.Resolve(context.Background(), tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.extracted, len(ext.calls) == 1)
		})
	}
}

func TestPredictMissingInput(t *testing.T) {
	eng := &fakeEngine{}
	p := New(&fakeExtractor{}, eng, nil)

	_, err := p.Predict(context.Background(), models.RawInput{URL: "https://unreachable.invalid"})
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = p.Predict(context.Background(), models.RawInput{Title: " ", Body: "\n"})
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, eng.gotTitle)
}

func TestPredictJournals(t *testing.T) {
	eng := &fakeEngine{inference: models.Inference{
		Prediction: models.Prediction{Label: models.LabelReal, Probability: 0.9},
		Mode:       engine.ModeModel,
		Embedding:  []float32{1, 2},
	}}
	journal := &memoryJournal{}
	p := New(&fakeExtractor{title: "From page"}, eng, journal)

	out, err := p.Predict(context.Background(), models.RawInput{URL: "https://x", Body: "body"})
	require.NoError(t, err)

	assert.Equal(t, "From page", eng.gotTitle)
	assert.Equal(t, "body", eng.gotBody)
	assert.Equal(t, models.LabelReal, out.Label)
	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "https://x", entry.URL)
	assert.Equal(t, "From page", entry.Title)
	assert.Equal(t, engine.ModeModel, entry.Mode)
	assert.Equal(t, []float32{1, 2}, entry.Embedding)
}

func TestPredictJournalFailureIsIgnored(t *testing.T) {
	p := New(&fakeExtractor{}, &fakeEngine{}, &memoryJournal{err: errors.New("db down")})

	_, err := p.Predict(context.Background(), models.RawInput{Title: "t"})
	assert.NoError(t, err)
}

func TestPredictEngineError(t *testing.T) {
	p := New(&fakeExtractor{}, &fakeEngine{err: engine.ErrInconsistentBundle}, nil)

	_, err := p.Predict(context.Background(), models.RawInput{Title: "t"})
	assert.ErrorIs(t, err, engine.ErrInconsistentBundle)
}

func TestPredictWithHeuristicEngine(t *testing.T) {
	p := New(&fakeExtractor{}, engine.New(nil), nil)

	out, err := p.Predict(context.Background(), models.RawInput{Title: "Breaking", Body: "News content here"})
	require.NoError(t, err)
	assert.Contains(t, []string{models.LabelReal, models.LabelFake}, out.Label)
	assert.GreaterOrEqual(t, out.Probability, 0.0)
	assert.LessOrEqual(t, out.Probability, 1.0)
	assert.Equal(t, engine.ModeHeuristic, out.Mode)
	assert.Nil(t, out.Embedding)
}
