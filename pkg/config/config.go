package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Model struct {
		BundlePath    string `yaml:"bundle_path"`
		VerifyOnStart bool   `yaml:"verify_on_start"`
		OllamaURL     string `yaml:"ollama_url"`
	} `yaml:"model"`

	Extractor struct {
		Timeout            time.Duration `yaml:"timeout"`
		Readability        bool          `yaml:"readability"`
		ReadabilityTimeout time.Duration `yaml:"readability_timeout"`
		UserAgent          string        `yaml:"user_agent"`
	} `yaml:"extractor"`

	Journal struct {
		URL          string `yaml:"url"`
		TableName    string `yaml:"table_name"`
		CreateSchema bool   `yaml:"create_schema"`
		RecentLimit  int    `yaml:"recent_limit"`
	} `yaml:"journal"`

	Feeds struct {
		URLs  []string `yaml:"urls"`
		Limit int      `yaml:"limit"`
	} `yaml:"feeds"`

	Sentry struct {
		DSN         string `yaml:"dsn"`
		Environment string `yaml:"environment"`
	} `yaml:"sentry"`

	UI struct {
		WeatherAPIKey string `yaml:"weather_api_key"`
		NewsAPIKey    string `yaml:"news_api_key"`
	} `yaml:"ui"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// LoadConfig reads path, or the first config file found in the default
// locations when path is empty. A .env file in the working directory is
// loaded into the environment before environment overrides are merged.
func LoadConfig(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	if path == "" {
		path = findConfig()
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// LoadDotEnv loads the given files, or .env, without overriding variables
// already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}

func findConfig() string {
	locations := []string{
		"config.yaml",
		"config.yml",
		filepath.Join(os.Getenv("HOME"), ".config/verity/config.yaml"),
		"/etc/verity/config.yaml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// newConfig presets the values whose zero value is meaningful, so a file can
// still switch them off.
func newConfig() *Config {
	config := &Config{}
	config.Extractor.Readability = true
	config.Journal.CreateSchema = true
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":5000"
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.Model.BundlePath == "" {
		config.Model.BundlePath = "model.yaml"
	}

	if config.Extractor.Timeout == 0 {
		config.Extractor.Timeout = 10 * time.Second
	}
	if config.Extractor.ReadabilityTimeout == 0 {
		config.Extractor.ReadabilityTimeout = 30 * time.Second
	}
	if config.Extractor.UserAgent == "" {
		config.Extractor.UserAgent = "Mozilla/5.0 (compatible; verity/1.0)"
	}

	if config.Journal.TableName == "" {
		config.Journal.TableName = "predictions"
	}
	if config.Journal.RecentLimit == 0 {
		config.Journal.RecentLimit = 20
	}

	if config.Feeds.Limit == 0 {
		config.Feeds.Limit = 10
	}

	if config.Sentry.Environment == "" {
		config.Sentry.Environment = "production"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if modelFile := os.Getenv("MODEL_FILE"); modelFile != "" {
		config.Model.BundlePath = modelFile
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Model.OllamaURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Journal.URL = dbURL
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		config.Sentry.DSN = dsn
	}
	if key := os.Getenv("OPENWEATHER_API_KEY"); key != "" {
		config.UI.WeatherAPIKey = key
	}
	if key := os.Getenv("NEWS_API_KEY"); key != "" {
		config.UI.NewsAPIKey = key
	}
}
