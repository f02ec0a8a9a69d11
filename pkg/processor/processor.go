package processor

import (
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Lemmatizer reduces a lowercase word to its dictionary base form.
type Lemmatizer interface {
	Lemma(word string) string
}

type ProcessorConfig struct {
	// Lemmatizer defaults to the shared English dictionary lemmatizer.
	Lemmatizer      Lemmatizer
	CustomStopwords []string
	// MinTokenLength drops tokens shorter than this. Defaults to 2.
	MinTokenLength int
}

// Processor turns raw title/body text into the normalized token string the
// classifier was trained on. It is safe for concurrent use.
type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

var nonAlpha = regexp.MustCompile(`[^a-z\s]`)

var (
	defaultOnce      sync.Once
	defaultProcessor *Processor
)

func NewWithConfig(config ProcessorConfig) *Processor {
	if config.Lemmatizer == nil {
		config.Lemmatizer = sharedLemmatizer()
	}
	if config.MinTokenLength == 0 {
		config.MinTokenLength = 2
	}

	stopwords := make(map[string]struct{}, len(englishStopwords)+len(config.CustomStopwords))
	for _, w := range englishStopwords {
		stopwords[w] = struct{}{}
	}
	for _, w := range config.CustomStopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	return &Processor{
		config:    config,
		stopwords: stopwords,
	}
}

// Default returns the process-wide processor, building it on first use.
func Default() *Processor {
	defaultOnce.Do(func() {
		defaultProcessor = NewWithConfig(ProcessorConfig{})
	})
	return defaultProcessor
}

// Normalize runs text through the default processor.
func Normalize(text string) string {
	return Default().Normalize(text)
}

// Normalize strips markup, lowercases, keeps ASCII letters only, removes
// stopwords and short tokens, then lemmatizes. Lemmas are filtered again by
// the same rules. The result is not guaranteed to be a fixed point: Normalize(Normalize(x)) may differ from Normalize(x).
func (p *Processor) Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = stripHTML(text)
	text = cases.Lower(language.Und).String(text)
	text = nonAlpha.ReplaceAllString(text, " ")

	tokens := strings.Fields(text)
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !p.keep(token) {
			continue
		}
		// A lemma can itself be a stopword or too short (others -> other).
		if lemma := p.config.Lemmatizer.Lemma(token); p.keep(lemma) {
			kept = append(kept, lemma)
		}
	}

	return strings.Join(kept, " ")
}

func (p *Processor) keep(token string) bool {
	if len(token) < p.config.MinTokenLength {
		return false
	}
	_, stop := p.stopwords[token]
	return !stop
}

// WordCount is the number of tokens in an already normalized string.
func WordCount(normalized string) int {
	return len(strings.Fields(normalized))
}

// stripHTML returns the concatenated text nodes of text, skipping script and
// style content. Input that does not parse is returned unchanged.
func stripHTML(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	doc.Find("script,style,noscript").Remove()
	return doc.Text()
}

type identityLemmatizer struct{}

func (identityLemmatizer) Lemma(word string) string { return word }

var (
	lemmatizerOnce sync.Once
	lemmatizer     Lemmatizer
)

func sharedLemmatizer() Lemmatizer {
	lemmatizerOnce.Do(func() {
		l, err := golem.New(en.New())
		if err != nil {
			log.Error().Err(err).Msg("failed to load english lemmatizer; tokens are kept as-is")
			lemmatizer = identityLemmatizer{}
			return
		}
		lemmatizer = l
	})
	return lemmatizer
}
