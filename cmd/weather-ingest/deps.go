package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/i474232898/weather-ingest/internal/config"
	"github.com/i474232898/weather-ingest/internal/events"
	"github.com/i474232898/weather-ingest/internal/logging"
	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
	"github.com/i474232898/weather-ingest/internal/weather/providers"
)

type publisher interface {
	weather.EventPublisher
	Close() error
}

// deps holds everything an invocation needs, built from configuration.
type deps struct {
	cfg       *config.Config
	log       *slog.Logger
	store     weather.Store
	publisher publisher
	pipeline  *weather.Pipeline
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, &configError{err: err}
	}
	return cfg, logging.Setup(cfg.Logging.Level), nil
}

// connect opens and probes the store, then builds the pipeline. A dry run
// never touches the configured store.
func connect(ctx context.Context, cfg *config.Config, log *slog.Logger, dryRun bool) (*deps, error) {
	d := &deps{cfg: cfg, log: log}

	if dryRun {
		d.store = store.NewMemoryStore(cfg.Store.Collection)
	} else {
		s, err := openStore(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrConnectivity, err)
		}
		d.store = s

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
		err = s.Ping(pingCtx)
		cancel()
		if err != nil {
			d.close()
			return nil, fmt.Errorf("%w: %s driver: %v", weather.ErrConnectivity, cfg.Store.Driver, err)
		}
		log.Info("store reachable", "driver", cfg.Store.Driver, "collection", s.Name())
	}

	if cfg.EventsEnabled() && !dryRun {
		d.publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
	} else {
		d.publisher = events.NopPublisher{}
	}

	client := providers.NewClient("openmeteo", providers.HTTPClientConfig{
		Client: &http.Client{Timeout: cfg.Fetch.Timeout},
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.Fetch.MaxRetries,
			InitialInterval: cfg.Fetch.BackoffInitial,
			MaxInterval:     cfg.Fetch.BackoffMax,
		},
	})
	extractor := providers.NewOpenMeteoExtractor(client, cfg.Fetch.BaseURL)
	loader := weather.NewLoader(d.store, log)

	d.pipeline = weather.NewPipeline(extractor, loader, log,
		weather.WithEvents(d.publisher),
		weather.WithDryRun(dryRun),
	)
	return d, nil
}

func (d *deps) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.log.Warn("closing event publisher", "error", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(ctx); err != nil {
			d.log.Warn("closing store", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (weather.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		return store.NewMongoStore(ctx, store.MongoConfig{
			URI:            cfg.Store.MongoURI,
			Database:       cfg.Store.MongoDB,
			Collection:     cfg.Store.Collection,
			ConnectTimeout: cfg.Store.ConnectTimeout,
		}, log)
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." && cfg.Store.SQLitePath != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return store.NewSQLiteStore(cfg.Store.SQLitePath, cfg.Store.Collection)
	case config.DriverMemory:
		return store.NewMemoryStore(cfg.Store.Collection), nil
	default:
		return nil, errors.New("unknown store driver " + cfg.Store.Driver)
	}
}
