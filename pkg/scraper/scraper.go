package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/internal/types"
)

var ErrEmptyArticle = errors.New("article has no title and no text")

// Result is the outcome of one extraction stage.
type Result struct {
	Article models.Article
	Err     error
}

func (r Result) OK() bool { return r.Err == nil }

func failed(err error) Result { return Result{Err: err} }

// Stage is a single way of turning a URL into an article.
type Stage interface {
	Name() string
	Extract(ctx context.Context, url string) Result
}

type ScraperConfig struct {
	// Timeout bounds the generic fallback fetch.
	Timeout time.Duration
	// ReadabilityTimeout bounds the readability download.
	ReadabilityTimeout time.Duration
	// DisableReadability skips the readability stage entirely.
	DisableReadability bool
	UserAgent          string
	// MaxBodyBytes caps how much of a page is read.
	MaxBodyBytes int64
	Reporter     types.Reporter
}

// Scraper runs its stages in order and returns the first successful article.
// Extract never fails: when every stage fails the result is empty.
type Scraper struct {
	config ScraperConfig
	stages []Stage
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.ReadabilityTimeout == 0 {
		config.ReadabilityTimeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "verity/1.0 (+https://github.com/xhad/verity)"
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 5 << 20
	}

	var stages []Stage
	if !config.DisableReadability {
		stages = append(stages, &ReadabilityStage{
			client:    &http.Client{Timeout: config.ReadabilityTimeout},
			userAgent: config.UserAgent,
			maxBytes:  config.MaxBodyBytes,
		})
	}
	stages = append(stages, &FallbackStage{
		client:    &http.Client{Timeout: config.Timeout},
		userAgent: config.UserAgent,
		maxBytes:  config.MaxBodyBytes,
	})

	return WithStages(config, stages...)
}

// WithStages builds a scraper from explicit stages.
func WithStages(config ScraperConfig, stages ...Stage) *Scraper {
	return &Scraper{config: config, stages: stages}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// Extract returns the title and body found at rawURL, or two empty strings.
func (s *Scraper) Extract(ctx context.Context, rawURL string) (string, string) {
	article := s.ExtractArticle(ctx, rawURL)
	return article.Title, article.Body
}

func (s *Scraper) ExtractArticle(ctx context.Context, rawURL string) models.Article {
	if rawURL == "" {
		return models.Article{}
	}

	for _, stage := range s.stages {
		result := stage.Extract(ctx, rawURL)
		if result.OK() {
			log.Debug().Str("stage", stage.Name()).Str("url", rawURL).Msg("article extracted")
			result.Article.URL = rawURL
			return result.Article
		}
		log.Warn().Err(result.Err).Str("stage", stage.Name()).Str("url", rawURL).Msg("extraction stage failed")
		if s.config.Reporter != nil {
			s.config.Reporter.Capture(result.Err, map[string]string{
				"component": "scraper",
				"stage":     stage.Name(),
			})
		}
	}

	return models.Article{}
}

// fetch issues a GET and returns the body reader, capped at maxBytes, along
// with the response. The caller closes resp.Body.
func fetch(ctx context.Context, client *http.Client, userAgent, rawURL string, maxBytes int64) (*http.Response, io.Reader, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return nil, nil, fmt.Errorf("invalid url: %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, rawURL)
	}

	return resp, io.LimitReader(resp.Body, maxBytes), nil
}
