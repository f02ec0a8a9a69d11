package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/pkg/engine"
	"github.com/xhad/verity/pkg/pipeline"
)

type fakeExtractor struct {
	title, body string
}

func (f fakeExtractor) Extract(ctx context.Context, url string) (string, string) {
	return f.title, f.body
}

type failingEngine struct{}

func (failingEngine) Run(ctx context.Context, title, body string) (models.Inference, error) {
	return models.Inference{}, engine.ErrInconsistentBundle
}

func (failingEngine) ModelLoaded() bool { return true }

type memoryJournal struct {
	entries []models.JournalEntry
	err     error
}

func (m *memoryJournal) Record(ctx context.Context, e models.JournalEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryJournal) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	return m.entries, m.err
}

func (m *memoryJournal) Close() {}

type staticHeadlines []models.Headline

func (s staticHeadlines) Trending(ctx context.Context, limit int) []models.Headline { return s }

func (s staticHeadlines) Enabled() bool { return len(s) > 0 }

func newTestServer(t *testing.T, p Predictor, opts ...Option) *httptest.Server {
	t.Helper()
	s, err := New(Config{WeatherAPIKey: "weather-key", NewsAPIKey: "news-key"}, p, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func heuristicPipeline(ext fakeExtractor) *pipeline.Pipeline {
	return pipeline.New(ext, engine.New(nil), nil)
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"status": "ok", "model_loaded": false}, decode(t, resp))
}

func TestPages(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `"weather-key"`)
	assert.Contains(t, body, `"news-key"`)

	resp, err = http.Get(ts.URL + "/about")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "About Verity")

	resp, err = http.Get(ts.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/static/js/index.js")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "loadTrendingNews")
}

func TestNewLoadsStatic(t *testing.T) {
	s, err := New(Config{}, heuristicPipeline(fakeExtractor{}))
	require.NoError(t, err)
	require.NotNil(t, s.static)

	_, err = fs.Stat(s.static, "js/index.js")
	assert.NoError(t, err)
	assert.Equal(t, ":5000", s.config.Addr)
}

func TestPredictAPI(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty object", `{}`, http.StatusBadRequest},
		{"malformed json", `{"title": `, http.StatusBadRequest},
		{"not an object", `["title"]`, http.StatusBadRequest},
		{"non-string fields", `{"title": 42, "text": ["a"]}`, http.StatusBadRequest},
		{"blank strings", `{"title": "  ", "text": "\n"}`, http.StatusBadRequest},
		{"unreachable url", `{"url": "https://unreachable.invalid/x"}`, http.StatusBadRequest},
		{"title and text", `{"title": "Breaking", "text": "News content here"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode(t, resp)
			if tt.status == http.StatusBadRequest {
				assert.Equal(t, map[string]interface{}{"error": "Please provide title/text or URL"}, body)
				return
			}
			assert.Contains(t, []interface{}{models.LabelReal, models.LabelFake}, body["label"])
			prob, ok := body["probability"].(float64)
			require.True(t, ok)
			assert.GreaterOrEqual(t, prob, 0.0)
			assert.LessOrEqual(t, prob, 1.0)
		})
	}
}

func TestPredictAPIFillsFromURL(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{title: "From page", body: "a b c"}))

	resp, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(`{"url": "https://news.example/a"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode(t, resp), "label")
}

func TestPredictAPIEngineFailure(t *testing.T) {
	ts := newTestServer(t, pipeline.New(fakeExtractor{}, failingEngine{}, nil))

	resp, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(`{"title": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"error": "prediction failed"}, decode(t, resp))
}

func TestPredictAPIMethod(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))

	resp, err := http.Get(ts.URL + "/api/predict")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPredictForm(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))

	resp, err := http.PostForm(ts.URL+"/predict", url.Values{"title": {""}, "text": {"  "}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Please provide title, text, or a valid URL.")

	resp, err = http.PostForm(ts.URL+"/predict", url.Values{"title": {"Breaking"}, "text": {"News content here"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Prediction:")
	assert.Contains(t, body, "Probability:")
	assert.Contains(t, body, `value="Breaking"`)
	assert.Contains(t, body, "News content here")
	assert.NotContains(t, body, "Please provide")
}

func TestPredictFormEngineFailure(t *testing.T) {
	ts := newTestServer(t, pipeline.New(fakeExtractor{}, failingEngine{}, nil))

	resp, err := http.PostForm(ts.URL+"/predict", url.Values{"title": {"x"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Prediction failed")
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))
	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	journal := &memoryJournal{}
	p := pipeline.New(fakeExtractor{}, engine.New(nil), journal)
	ts = newTestServer(t, p, WithJournal(journal))

	resp, err = http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(`{"title": "Recorded"}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/history?limit=5")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	items, ok := decode(t, resp)["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "Recorded", items[0].(map[string]interface{})["title"])
}

func TestHistoryError(t *testing.T) {
	journal := &memoryJournal{err: errors.New("db down")}
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}), WithJournal(journal))

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestTrending(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{}))
	resp, err := http.Get(ts.URL + "/api/trending")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"items": []interface{}{}}, decode(t, resp))

	published := time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)
	headlines := staticHeadlines{{Title: "Story", Link: "https://news.example/1", Published: &published, Label: models.LabelReal, Probability: 0.5}}
	ts = newTestServer(t, heuristicPipeline(fakeExtractor{}), WithHeadlines(headlines))

	resp, err = http.Get(ts.URL + "/api/trending?limit=3")
	require.NoError(t, err)
	items := decode(t, resp)["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "Story", item["title"])
	assert.Equal(t, "2024-04-03T08:00:00Z", item["published"])
	assert.Equal(t, models.LabelReal, item["label"])
}

func TestWebSocketPredict(t *testing.T) {
	ts := newTestServer(t, heuristicPipeline(fakeExtractor{title: "Fetched", body: "one two three"}))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		t.Helper()
		var m Message
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	require.NoError(t, conn.WriteJSON(Message{Type: "predict", Data: map[string]string{"url": "https://news.example/a"}}))

	msg := read()
	assert.Equal(t, "status", msg.Type)
	assert.Contains(t, msg.Content, "https://news.example/a")
	assert.Equal(t, "status", read().Type)

	msg = read()
	assert.Equal(t, "result", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Fetched", data["title"])
	assert.Equal(t, engine.ModeHeuristic, data["mode"])
	assert.Contains(t, []interface{}{models.LabelReal, models.LabelFake}, data["label"])

	require.NoError(t, conn.WriteJSON(Message{Type: "predict", Data: map[string]string{"title": ""}}))
	assert.Equal(t, "status", read().Type)
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "Please provide title/text or URL", msg.Content)

	require.NoError(t, conn.WriteJSON(Message{Type: "chat"}))
	assert.Equal(t, "error", read().Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = read()
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "invalid message", msg.Content)
}
