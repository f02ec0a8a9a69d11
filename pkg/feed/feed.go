package feed

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/internal/models"
	"github.com/xhad/verity/internal/types"
)

type ReaderConfig struct {
	URLs      []string
	Limit     int
	Timeout   time.Duration
	UserAgent string
}

// Reader pulls headlines from RSS/Atom feeds and labels each one.
type Reader struct {
	config ReaderConfig
	parser *gofeed.Parser
	engine types.Engine
}

func NewWithConfig(config ReaderConfig, engine types.Engine) *Reader {
	if config.Limit <= 0 {
		config.Limit = 10
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "verity/1.0"
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: config.Timeout}
	parser.UserAgent = config.UserAgent

	return &Reader{config: config, parser: parser, engine: engine}
}

func (r *Reader) Enabled() bool { return len(r.config.URLs) > 0 }

// Trending merges items from every configured feed, newest first, capped at
// limit. Feeds that fail to load are skipped.
func (r *Reader) Trending(ctx context.Context, limit int) []models.Headline {
	if limit <= 0 || limit > r.config.Limit {
		limit = r.config.Limit
	}

	var headlines []models.Headline
	loaded := 0
	for _, url := range r.config.URLs {
		feed, err := r.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			log.Warn().Err(err).Str("feed", url).Msg("failed to parse feed")
			continue
		}
		loaded++
		for _, item := range feed.Items {
			if h, ok := toHeadline(item); ok {
				headlines = append(headlines, h)
			}
		}
	}
	log.Debug().Int("loaded", loaded).Int("configured", len(r.config.URLs)).Int("items", len(headlines)).Msg("feeds processed")

	sortNewestFirst(headlines)
	if len(headlines) > limit {
		headlines = headlines[:limit]
	}

	for i := range headlines {
		r.label(ctx, &headlines[i])
	}
	return headlines
}

func (r *Reader) label(ctx context.Context, h *models.Headline) {
	inference, err := r.engine.Run(ctx, h.Title, h.Summary)
	if err != nil {
		log.Warn().Err(err).Str("link", h.Link).Msg("failed to classify headline")
		h.Label = models.LabelUnknown
		return
	}
	h.Label = inference.Label
	h.Probability = inference.Probability
}

func toHeadline(item *gofeed.Item) (models.Headline, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return models.Headline{}, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}

	return models.Headline{
		Title:     title,
		Link:      strings.TrimSpace(item.Link),
		Summary:   summary,
		Published: published,
	}, true
}

// Undated items sort after dated ones and keep their feed order.
func sortNewestFirst(headlines []models.Headline) {
	sort.SliceStable(headlines, func(i, j int) bool {
		a, b := headlines[i].Published, headlines[j].Published
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
}
