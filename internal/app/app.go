// Package app assembles a running flowhawk instance from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/flowhawk/common/logging"
	natsclient "github.com/telhawk-systems/flowhawk/common/messaging/nats"
	"github.com/telhawk-systems/flowhawk/internal/alert"
	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/config"
	"github.com/telhawk-systems/flowhawk/internal/dlq"
	"github.com/telhawk-systems/flowhawk/internal/handlers"
	flownats "github.com/telhawk-systems/flowhawk/internal/nats"
	"github.com/telhawk-systems/flowhawk/internal/pipeline"
	"github.com/telhawk-systems/flowhawk/internal/registry"
	"github.com/telhawk-systems/flowhawk/internal/repository"
	"github.com/telhawk-systems/flowhawk/internal/server"
	"github.com/telhawk-systems/flowhawk/internal/service"
	"github.com/telhawk-systems/flowhawk/internal/storage"
	"github.com/telhawk-systems/flowhawk/internal/stream"
	"github.com/telhawk-systems/flowhawk/internal/synthetic"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
	"github.com/telhawk-systems/flowhawk/migrations"
)

// SourceZeekCSV tags alerts loaded from the configured connection log.
const SourceZeekCSV = "zeek_csv"

// App holds every long-lived component of a serving instance.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	Repo      repository.Repository
	Registry  *registry.Registry
	Broker    *stream.Broker
	Pipeline  *pipeline.Pipeline
	Alerts    *service.AlertService
	Datasets  *service.DatasetService
	Synthetic *synthetic.Runner
	DLQ       *dlq.Queue
	Handler   *handlers.Handler
	Server    *server.Server

	pool    *classifier.Pool
	redis   *redis.Client
	nats    *natsclient.Client
	relay   *flownats.Relay
	indexer *storage.Indexer
	closers []func() error
}

// Build connects to the configured backends and wires the services. A
// missing or invalid classifier artifact fails the build. On error every
// component opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *App, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = a.openRepository(ctx); err != nil {
		return nil, err
	}

	a.redis, err = registry.NewClient(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.redis.Close)
	a.Registry, err = registry.New(a.redis, cfg.Redis.CacheSize)
	if err != nil {
		return nil, err
	}

	a.Broker = stream.NewBroker(cfg.Stream.QueueSize)

	var opts []service.AlertOption
	var events service.DatasetEvents
	if cfg.NATS.Enabled {
		pub, err := a.openNATS()
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithEventPublisher(pub))
		events = pub
	}
	if cfg.OpenSearch.Enabled {
		if err := a.openIndexer(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, service.WithIndexer(a.indexer))
	}
	a.Alerts = service.NewAlertService(a.Repo, a.Broker, logger, opts...)

	if cfg.DLQ.Enabled {
		a.DLQ, err = dlq.NewQueue(cfg.DLQ.Dir, logger)
		if err != nil {
			return nil, err
		}
	}

	a.pool = classifier.NewPool(cfg.Model.Workers, cfg.Model.QueueSize)
	a.closers = append(a.closers, func() error { a.pool.Close(); return nil })
	adapter, err := classifier.Load(cfg.Model.Path, classifier.WithPool(a.pool))
	if err != nil {
		return nil, fmt.Errorf("load classifier %s: %w", cfg.Model.Path, err)
	}
	p, err := pipeline.New(adapter, alert.NewAssembler(nil))
	if err != nil {
		return nil, err
	}
	a.Pipeline = p.WithDLQ(a.DLQ)
	logger.Info("Classifier loaded",
		"path", cfg.Model.Path,
		"version", adapter.Version(),
		"features", len(adapter.FeatureNames()),
		"classes", len(adapter.Classes()))

	a.Datasets = service.NewDatasetService(service.DatasetConfig{
		UploadDir:      cfg.Datasets.UploadDir,
		ReferencePath:  cfg.Datasets.ReferencePath,
		DefaultPath:    cfg.Datasets.DefaultPath,
		MaxUploadBytes: cfg.Datasets.MaxUploadBytes,
	}, a.Registry, a.Pipeline, a.Alerts, events, logger)

	gen := synthetic.NewGenerator(cfg.Synthetic.Seed, nil)
	a.Synthetic = synthetic.NewRunner(gen, a.Alerts, cfg.Synthetic.RatePerMin, logger)
	a.closers = append(a.closers, func() error { a.Synthetic.Stop(); return nil })

	a.Handler = handlers.NewHandler(handlers.Config{
		Alerts:    a.Alerts,
		Datasets:  a.Datasets,
		Synthetic: a.Synthetic,
		DLQ:       a.DLQ,
		Checks:    a.checks(),
		Logger:    logger,
		KeepAlive: cfg.Stream.KeepAlive,
	})
	router := server.NewRouter(a.Handler, server.RouterConfig{MaxUploadBytes: cfg.Datasets.MaxUploadBytes})
	a.Server = server.New(server.Config{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger)

	return a, nil
}

func (a *App) openRepository(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case config.DriverMemory:
		a.Repo = repository.NewMemoryRepository()
	default:
		if a.cfg.Database.Migrate {
			if err := migrations.Up(a.cfg.Database.URL); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		repo, err := repository.NewPostgresRepository(ctx, a.cfg.Database.URL)
		if err != nil {
			return err
		}
		a.Repo = repo
	}
	a.closers = append(a.closers, a.Repo.Close)
	return nil
}

func (a *App) openNATS() (*flownats.Publisher, error) {
	ncfg := natsclient.DefaultConfig()
	ncfg.URL = a.cfg.NATS.URL
	ncfg.MaxReconnects = a.cfg.NATS.MaxReconnects
	if a.cfg.NATS.ReconnectWait > 0 {
		ncfg.ReconnectWait = a.cfg.NATS.ReconnectWait
	}
	client, err := natsclient.NewClient(ncfg, a.logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	a.nats = client
	a.closers = append(a.closers, client.Close)

	origin := instanceID()
	pub := flownats.NewPublisher(client, origin)
	if a.cfg.NATS.Relay {
		a.relay = flownats.NewRelay(client, a.Broker, origin)
	}
	return pub, nil
}

func (a *App) openIndexer(ctx context.Context) error {
	oc := a.cfg.OpenSearch
	idx, err := storage.NewIndexer(storage.Config{
		URL:             oc.URL,
		Username:        oc.Username,
		Password:        oc.Password,
		TLSSkipVerify:   oc.Insecure,
		IndexPrefix:     oc.IndexPrefix,
		ShardCount:      oc.Shards,
		ReplicaCount:    oc.Replicas,
		RefreshInterval: oc.RefreshInterval,
	}, a.logger.Logger)
	if err != nil {
		return err
	}
	if err := idx.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize opensearch: %w", err)
	}
	a.indexer = idx
	return nil
}

func (a *App) checks() []handlers.Check {
	checks := []handlers.Check{
		{Name: "database", Ping: a.Repo.Ping},
		{Name: "redis", Ping: a.Registry.Ping},
	}
	if a.indexer != nil {
		checks = append(checks, handlers.Check{Name: "opensearch", Ping: a.indexer.Ping})
	}
	if a.nats != nil {
		client := a.nats
		checks = append(checks, handlers.Check{Name: "nats", Ping: func(context.Context) error {
			if !client.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}
	return checks
}

// Seed performs the startup load selected by the ingestion mode.
func (a *App) Seed(ctx context.Context) error {
	switch a.cfg.Ingestion.Mode {
	case config.ModeSyntheticSeed:
		total, err := a.Alerts.Total(ctx)
		if err != nil {
			return fmt.Errorf("count alerts: %w", err)
		}
		if total == 0 {
			if _, err := a.Synthetic.SeedInitial(ctx, a.cfg.Synthetic.SeedCount); err != nil {
				return err
			}
		} else {
			a.logger.Info("Skipping synthetic seed", "existing_alerts", total)
		}
		if a.cfg.Synthetic.Enabled {
			if _, err := a.Synthetic.Start(ctx, a.cfg.Synthetic.RatePerMin); err != nil {
				return err
			}
		}
		return nil
	case config.ModeZeekCSV:
		_, err := a.LoadConnLog(ctx, a.cfg.Ingestion.ZeekConnPath, a.cfg.Ingestion.ZeekSeedLimit)
		return err
	default:
		a.logger.Info("No startup ingestion", "mode", a.cfg.Ingestion.Mode)
		return nil
	}
}

// LoadConnLog classifies up to limit rows of the table at path and stores
// the alerts. A non-positive limit loads every row.
func (a *App) LoadConnLog(ctx context.Context, path string, limit int) (pipeline.Stats, error) {
	rc, err := tabular.Open(path)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer rc.Close()

	r, err := tabular.NewReader(rc)
	if err != nil {
		return pipeline.Stats{}, err
	}
	kind, err := a.Pipeline.Detector().Detect(r.Header())
	if err != nil {
		return pipeline.Stats{}, err
	}

	p := a.Pipeline.ForSource(filepath.Base(path), path)
	stored := 0
	st, err := p.Run(ctx, kind, pipeline.FromReader(r), func(res pipeline.Result) error {
		if _, err := a.Alerts.CreateAlert(ctx, res.Alert, SourceZeekCSV); err != nil {
			return err
		}
		stored++
		if limit > 0 && stored >= limit {
			return pipeline.ErrStop
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	a.logger.Info("Loaded connection log",
		logging.Source(SourceZeekCSV),
		"path", path,
		"kind", string(kind),
		logging.Rows(st.Rows),
		logging.Skipped(st.Skipped),
		"alerts", stored)
	return st, nil
}

// Run starts the relay and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.relay != nil {
		if err := a.relay.Start(ctx); err != nil {
			return err
		}
		defer a.relay.Stop()
	}
	a.logger.Info("Starting flowhawk", "addr", a.cfg.Server.Addr(), "mode", a.cfg.Ingestion.Mode)
	return a.Server.Run(ctx)
}

// Close releases every component in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "flowhawk"
	}
	return host + "-" + uuid.NewString()[:8]
}
