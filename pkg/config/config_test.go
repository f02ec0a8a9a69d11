package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "MODEL_FILE", "OLLAMA_BASE_URL", "DATABASE_URL", "SENTRY_DSN", "OPENWEATHER_API_KEY", "NEWS_API_KEY"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
server:
  addr: "127.0.0.1:8080"

model:
  bundle_path: "/models/news.yaml"
  verify_on_start: true

extractor:
  timeout: 5s
  readability: false

journal:
  url: "postgres://localhost:5432/test"
  table_name: "test_predictions"

feeds:
  urls:
    - "https://feeds.example/world.xml"
  limit: 3

ui:
  weather_api_key: "w-key"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", config.Server.Addr)
	assert.Equal(t, "/models/news.yaml", config.Model.BundlePath)
	assert.True(t, config.Model.VerifyOnStart)
	assert.Equal(t, 5*time.Second, config.Extractor.Timeout)
	assert.False(t, config.Extractor.Readability)
	assert.Equal(t, 30*time.Second, config.Extractor.ReadabilityTimeout)
	assert.Equal(t, "postgres://localhost:5432/test", config.Journal.URL)
	assert.True(t, config.Journal.CreateSchema)
	assert.Equal(t, []string{"https://feeds.example/world.xml"}, config.Feeds.URLs)
	assert.Equal(t, 3, config.Feeds.Limit)
	assert.Equal(t, "w-key", config.UI.WeatherAPIKey)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)
	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, ":5000", config.Server.Addr)
	assert.Equal(t, "model.yaml", config.Model.BundlePath)
	assert.Equal(t, 10*time.Second, config.Extractor.Timeout)
	assert.True(t, config.Extractor.Readability)
	assert.Equal(t, "predictions", config.Journal.TableName)
	assert.Empty(t, config.Journal.URL)
	assert.Equal(t, "info", config.Log.Level)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)

	config.Server.Addr = "no-port"
	config.Model.OllamaURL = "localhost:11434"
	config.Extractor.Timeout = 0
	config.Journal.URL = "mysql://db"
	config.Feeds.URLs = []string{"ftp://feeds.example/x"}
	config.Log.Level = "loud"

	errors := config.Validate()
	fields := make([]string, len(errors))
	for i, e := range errors {
		fields[i] = e.Field
	}

	assert.Equal(t, []string{
		"server.addr",
		"model.ollama_url",
		"extractor.timeout",
		"journal.url",
		"feeds.urls",
		"log.level",
	}, fields)
	assert.Contains(t, errors[0].Error(), "server.addr: invalid listen address")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "8081")
	t.Setenv("MODEL_FILE", "/srv/model.yaml")
	t.Setenv("SENTRY_DSN", "https://key@sentry.example/1")
	t.Setenv("OPENWEATHER_API_KEY", "weather")
	t.Setenv("NEWS_API_KEY", "news")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.Model.OllamaURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Journal.URL)
	assert.Equal(t, ":8081", config.Server.Addr)
	assert.Equal(t, "/srv/model.yaml", config.Model.BundlePath)
	assert.Equal(t, "https://key@sentry.example/1", config.Sentry.DSN)
	assert.Equal(t, "weather", config.UI.WeatherAPIKey)
	assert.Equal(t, "news", config.UI.NewsAPIKey)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEWS_API_KEY=from-dotenv\n"), 0644))

	t.Setenv("NEWS_API_KEY", "")
	os.Unsetenv("NEWS_API_KEY")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("NEWS_API_KEY"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
