package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Predictor is the pipeline surface the handlers need.
type Predictor interface {
	Predict(ctx context.Context, in models.RawInput) (models.Outcome, error)
	ModelLoaded() bool
}

type Headlines interface {
	Trending(ctx context.Context, limit int) []models.Headline
	Enabled() bool
}

type Config struct {
	Addr            string
	WeatherAPIKey   string
	NewsAPIKey      string
	ShutdownTimeout time.Duration
}

type Server struct {
	config    Config
	predictor Predictor
	journal   types.Journal
	feeds     Headlines
	pages     *template.Template
	static    fs.FS
}

type Option func(*Server)

func WithJournal(j types.Journal) Option {
	return func(s *Server) { s.journal = j }
}

func WithHeadlines(h Headlines) Option {
	return func(s *Server) { s.feeds = h }
}

func New(config Config, predictor Predictor, opts ...Option) (*Server, error) {
	if config.Addr == "" {
		config.Addr = ":5000"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to load static assets: %w", err)
	}

	s := &Server{
		config:    config,
		predictor: predictor,
		pages:     pages,
		static:    static,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /about", s.handleAbout)
	mux.HandleFunc("POST /predict", s.handlePredictForm)
	mux.HandleFunc("POST /api/predict", s.handlePredictAPI)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/trending", s.handleTrending)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	return logRequest(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
