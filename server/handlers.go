package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/pkg/pipeline"
)

const (
	maxJSONBody = 1 << 20

	formMissingInput = "Please provide title, text, or a valid URL."
	formFailed       = "Prediction failed. Please try again."
	apiMissingInput  = "Please provide title/text or URL"
	apiFailed        = "prediction failed"
)

type pageData struct {
	WeatherAPIKey string
	NewsAPIKey    string
	Error         string
	Prediction    string
	Probability   float64
	Title         string
	Text          string
	URL           string
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("failed to render page")
	}
}

func (s *Server) page() pageData {
	return pageData{WeatherAPIKey: s.config.WeatherAPIKey, NewsAPIKey: s.config.NewsAPIKey}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index.html", s.page())
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "about.html", nil)
}

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	in := models.RawInput{
		URL:   r.PostFormValue("url"),
		Title: r.PostFormValue("title"),
		Body:  r.PostFormValue("text"),
	}

	out, err := s.predictor.Predict(r.Context(), in)
	data := s.page()
	data.URL, data.Title, data.Text = out.Input.URL, out.Input.Title, out.Input.Body

	switch {
	case errors.Is(err, pipeline.ErrMissingInput):
		data.Error = formMissingInput
		s.render(w, http.StatusOK, "index.html", data)
	case err != nil:
		log.Error().Err(err).Msg("form prediction failed")
		data.Error = formFailed
		s.render(w, http.StatusInternalServerError, "index.html", data)
	default:
		data.Prediction = out.Label
		data.Probability = out.Probability
		s.render(w, http.StatusOK, "index.html", data)
	}
}

func (s *Server) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&fields); err != nil {
		fields = nil
	}

	out, err := s.predictor.Predict(r.Context(), inputFromFields(fields))
	switch {
	case errors.Is(err, pipeline.ErrMissingInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": apiMissingInput})
	case err != nil:
		log.Error().Err(err).Msg("api prediction failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": apiFailed})
	default:
		writeJSON(w, http.StatusOK, out.Prediction)
	}
}

// inputFromFields reads url/title/text from a decoded JSON object. Missing
// and non-string values count as empty.
func inputFromFields(fields map[string]interface{}) models.RawInput {
	str := func(key string) string {
		v, _ := fields[key].(string)
		return v
	}
	return models.RawInput{URL: str("url"), Title: str("title"), Body: str("text")}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": s.predictor.ModelLoaded(),
	})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	items := []models.Headline{}
	if s.feeds != nil && s.feeds.Enabled() {
		if got := s.feeds.Trending(r.Context(), queryLimit(r)); got != nil {
			items = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}

	entries, err := s.journal.Recent(r.Context(), queryLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to read journal")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": entries})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
