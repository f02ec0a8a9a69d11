package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xhad/verity/internal/types"
	cfgPkg "github.com/xhad/verity/pkg/config"
	"github.com/xhad/verity/pkg/engine"
	"github.com/xhad/verity/pkg/feed"
	"github.com/xhad/verity/pkg/model"
	"github.com/xhad/verity/pkg/observe"
	"github.com/xhad/verity/pkg/pipeline"
	"github.com/xhad/verity/pkg/scraper"
	"github.com/xhad/verity/pkg/store"
	"github.com/xhad/verity/server"
)

var version = "dev"

type flags struct {
	configPath  string
	addr        string
	modelPath   string
	interactive bool
	verbose     bool
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	f := parseFlags()

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	applyFlags(config, f)
	setLogLevel(config.Log.Level, f.verbose)

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Int("errors", len(errs)).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, f.interactive); err != nil {
		log.Fatal().Err(err).Msg("verity stopped")
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.addr, "addr", "", "Listen address (overrides server.addr)")
	flag.StringVar(&f.modelPath, "model", "", "Path to the model bundle (overrides model.bundle_path)")
	flag.BoolVar(&f.interactive, "interactive", false, "Classify articles from the terminal instead of serving HTTP")
	flag.BoolVar(&f.verbose, "v", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyFlags(config *cfgPkg.Config, f flags) {
	if f.addr != "" {
		config.Server.Addr = f.addr
	}
	if f.modelPath != "" {
		config.Model.BundlePath = f.modelPath
	}
}

func setLogLevel(level string, verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func run(ctx context.Context, config *cfgPkg.Config, interactive bool) error {
	reporter, err := observe.New(config.Sentry.DSN, config.Sentry.Environment, version)
	if err != nil {
		return fmt.Errorf("failed to initialize error reporting: %w", err)
	}
	defer reporter.Flush(2 * time.Second)

	bundle, err := loadBundle(ctx, config)
	if err != nil {
		return err
	}
	eng := engine.New(bundle)
	log.Info().Str("mode", eng.Mode()).Msg("engine ready")

	extractor := scraper.NewWithConfig(scraper.ScraperConfig{
		Timeout:            config.Extractor.Timeout,
		ReadabilityTimeout: config.Extractor.ReadabilityTimeout,
		DisableReadability: !config.Extractor.Readability,
		UserAgent:          config.Extractor.UserAgent,
		Reporter:           reporter,
	})

	var journal types.Journal
	if config.Journal.URL != "" {
		vectorDim := 0
		if bundle != nil {
			vectorDim = bundle.Dimension()
		}
		j, err := store.NewWithConfig(ctx, store.JournalConfig{
			ConnString:   config.Journal.URL,
			TableName:    config.Journal.TableName,
			VectorDim:    vectorDim,
			RecentLimit:  config.Journal.RecentLimit,
			CreateSchema: config.Journal.CreateSchema,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize journal: %w", err)
		}
		defer j.Close()
		journal = j
		log.Info().Str("table", config.Journal.TableName).Msg("journal enabled")
	}

	p := pipeline.New(extractor, eng, journal)

	if interactive {
		return runInteractive(ctx, p)
	}

	headlines := feed.NewWithConfig(feed.ReaderConfig{
		URLs:      config.Feeds.URLs,
		Limit:     config.Feeds.Limit,
		Timeout:   config.Extractor.Timeout,
		UserAgent: config.Extractor.UserAgent,
	}, eng)

	opts := []server.Option{server.WithHeadlines(headlines)}
	if journal != nil {
		opts = append(opts, server.WithJournal(journal))
	}

	srv, err := server.New(server.Config{
		Addr:            config.Server.Addr,
		WeatherAPIKey:   config.UI.WeatherAPIKey,
		NewsAPIKey:      config.UI.NewsAPIKey,
		ShutdownTimeout: config.Server.ShutdownTimeout,
	}, p, opts...)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadBundle returns nil without error when no bundle file exists; the engine
// then runs in heuristic mode.
func loadBundle(ctx context.Context, config *cfgPkg.Config) (*model.Bundle, error) {
	bundle, err := model.Load(config.Model.BundlePath, model.LoadOptions{OllamaURL: config.Model.OllamaURL})
	if errors.Is(err, model.ErrBundleNotFound) {
		log.Warn().Str("path", config.Model.BundlePath).Msg("model bundle not found, using heuristic predictions")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model bundle: %w", err)
	}

	if config.Model.VerifyOnStart {
		verifyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := bundle.Verify(verifyCtx); err != nil {
			return nil, fmt.Errorf("model bundle failed verification: %w", err)
		}
	}

	log.Info().
		Str("path", config.Model.BundlePath).
		Int("dimension", bundle.Dimension()).
		Msg("model bundle loaded")
	return bundle, nil
}
