package config

import (
	"fmt"
	"net"
	"net/url"

	"github.com/rs/zerolog"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: fmt.Sprintf("invalid listen address %q", c.Server.Addr),
		})
	}

	if c.Server.ShutdownTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown_timeout must not be negative",
		})
	}

	if c.Model.BundlePath == "" {
		errors = append(errors, ValidationError{
			Field:   "model.bundle_path",
			Message: "bundle path is required",
		})
	}

	if c.Model.OllamaURL != "" && !isHTTPURL(c.Model.OllamaURL) {
		errors = append(errors, ValidationError{
			Field:   "model.ollama_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.Extractor.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "extractor.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Extractor.Readability && c.Extractor.ReadabilityTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "extractor.readability_timeout",
			Message: "readability_timeout must be positive",
		})
	}

	if c.Journal.URL != "" {
		if u, err := url.Parse(c.Journal.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, ValidationError{
				Field:   "journal.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Journal.RecentLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "journal.recent_limit",
			Message: "recent_limit must be positive",
		})
	}

	for _, u := range c.Feeds.URLs {
		if !isHTTPURL(u) {
			errors = append(errors, ValidationError{
				Field:   "feeds.urls",
				Message: fmt.Sprintf("invalid feed URL: %s", u),
			})
		}
	}

	if c.Feeds.Limit < 1 {
		errors = append(errors, ValidationError{
			Field:   "feeds.limit",
			Message: "limit must be positive",
		})
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level %q", c.Log.Level),
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
