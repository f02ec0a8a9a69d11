package scraper

import (
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/xhad/verity/internal/models"
	"golang.org/x/net/html/charset"
)

// ReadabilityStage downloads the page and runs go-readability over it.
type ReadabilityStage struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func (s *ReadabilityStage) Name() string { return "readability" }

func (s *ReadabilityStage) Extract(ctx context.Context, rawURL string) Result {
	resp, body, err := fetch(ctx, s.client, s.userAgent, rawURL, s.maxBytes)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	article, err := readability.FromReader(body, resp.Request.URL)
	if err != nil {
		return failed(err)
	}

	extracted := models.Article{
		Title: strings.TrimSpace(article.Title),
		Body:  strings.TrimSpace(article.TextContent),
	}
	if extracted.Empty() {
		return failed(ErrEmptyArticle)
	}
	return Result{Article: extracted}
}

// FallbackStage takes the page <title> and the text of every <p>.
type FallbackStage struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func (s *FallbackStage) Name() string { return "fallback" }

func (s *FallbackStage) Extract(ctx context.Context, rawURL string) Result {
	resp, body, err := fetch(ctx, s.client, s.userAgent, rawURL, s.maxBytes)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	decoded, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return failed(err)
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return failed(err)
	}

	return Result{Article: articleFromDocument(doc)}
}

func articleFromDocument(doc *goquery.Document) models.Article {
	title := doc.Find("title").First().Text()

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, s.Text())
	})

	return models.Article{
		Title: strings.TrimSpace(title),
		Body:  strings.TrimSpace(strings.Join(paragraphs, " ")),
	}
}
