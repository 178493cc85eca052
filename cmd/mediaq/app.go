package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/mediaq/internal/config"
	"github.com/phrazzld/mediaq/internal/events"
	"github.com/phrazzld/mediaq/internal/platform/badger"
	"github.com/phrazzld/mediaq/internal/platform/gemini"
	"github.com/phrazzld/mediaq/internal/platform/postgres"
	"github.com/phrazzld/mediaq/internal/platform/storage"
	"github.com/phrazzld/mediaq/internal/producer"
	"github.com/phrazzld/mediaq/internal/queue"
	"github.com/phrazzld/mediaq/internal/store"
)

// application holds the dependencies shared by the commands.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	jobs    store.JobStore
	emitter events.EventEmitter
	closers []func() error
}

// newApplication opens the configured job store and event publishing.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	if len(cfg.Events.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Events.Brokers), cfg.Events.Topic, logger)
		emitter.RegisterHandler(publisher)
		app.closers = append(app.closers, publisher.Close)
		logger.Info("publishing job events to kafka",
			"brokers", cfg.Events.Brokers,
			"topic", cfg.Events.Topic)
	}
	app.emitter = emitter

	return app, nil
}

func (app *application) openStore(ctx context.Context) error {
	switch app.cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, app.cfg.Database.URL, app.cfg.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		app.jobs = postgres.NewPostgresJobStore(db)
		app.closers = append(app.closers, db.Close)
	case config.DriverBadger:
		db, err := badger.Open(app.cfg.Database.BadgerPath, app.logger)
		if err != nil {
			return err
		}
		app.jobs = badger.NewJobStore(db)
		app.closers = append(app.closers, db.Close)
	default:
		return fmt.Errorf("unsupported database driver %q", app.cfg.Database.Driver)
	}
	app.logger.Debug("job store opened", "driver", app.cfg.Database.Driver)
	return nil
}

// close releases resources in reverse order of acquisition.
func (app *application) close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// buildProducer assembles the configured producer behind a circuit breaker
// and a per-call timeout. Jobs labelled "simulated" always get placeholders.
func (app *application) buildProducer(ctx context.Context) (producer.Producer, error) {
	pc := app.cfg.Producer
	simulated := producer.NewSimulated()

	var base producer.Producer = simulated
	if pc.Kind == config.ProducerGemini {
		var writer gemini.AssetWriter
		if pc.AssetDir != "" {
			fs, err := storage.NewFileStore(pc.AssetDir, pc.PublicBaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize asset storage: %w", err)
			}
			writer = fs
		}
		g, err := gemini.NewProducer(ctx, gemini.Config{
			APIKey:       pc.GeminiAPIKey,
			ImageModel:   pc.ImageModel,
			VideoModel:   pc.VideoModel,
			AspectRatio:  pc.AspectRatio,
			PollInterval: pc.PollInterval,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
			Prompt:       pc.Prompt,
		}, writer, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini producer: %w", err)
		}
		base = g
	}

	guarded := producer.WithTimeout(producer.WithCircuitBreaker(base, producer.BreakerSettings{
		Name:                pc.Kind,
		ConsecutiveFailures: pc.BreakerTrips,
		OpenTimeout:         pc.BreakerTimeout,
		Logger:              app.logger,
	}), pc.Timeout)

	registry := producer.NewRegistry(guarded)
	registry.Register(config.ProducerSimulated, simulated)
	app.logger.Info("asset producer initialized", "kind", pc.Kind, "timeout", pc.Timeout)
	return registry, nil
}

func (app *application) dispatcher(p producer.Producer) *queue.Dispatcher {
	return queue.NewDispatcher(app.jobs, p, app.emitter, queue.SystemClock{}, queue.DispatcherConfig{
		Concurrency: app.cfg.Dispatcher.Concurrency,
		RunnerName:  app.cfg.Dispatcher.RunnerName,
	}, app.logger)
}

func (app *application) reclaimer() *queue.Reclaimer {
	return queue.NewReclaimer(app.jobs, app.emitter, queue.SystemClock{}, queue.ReclaimerConfig{
		RunnerName: app.cfg.Reclaimer.RunnerName,
	}, app.logger)
}

func (app *application) healthChecker() *queue.HealthChecker {
	return queue.NewHealthChecker(app.jobs, queue.SystemClock{}, queue.HealthConfig{
		StaleHours:      app.cfg.Health.StaleHours,
		BacklogLimit:    app.cfg.Health.BacklogLimit,
		Failure24hLimit: app.cfg.Health.Failure24hLimit,
	}, app.logger)
}

// openPostgres is used by commands that need a raw connection.
func openPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("command requires the %s driver, configured driver is %q",
			config.DriverPostgres, cfg.Database.Driver)
	}
	return postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
