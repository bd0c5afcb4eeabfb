package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/omopexport/internal/config"
	"github.com/ehr/omopexport/internal/domain/export"
	"github.com/ehr/omopexport/internal/platform/blobstore"
	"github.com/ehr/omopexport/internal/platform/db"
	"github.com/ehr/omopexport/internal/platform/omop"
	"github.com/ehr/omopexport/internal/platform/telemetry"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool
	store     blobstore.Store
	signer    *blobstore.URLSigner
	publisher *export.Publisher
	queue     *export.PGQueue
	telemetry *telemetry.Provider
	svc       *export.Service
}

func newLogger(w io.Writer, env, level string) zerolog.Logger {
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	logger := zerolog.New(w).With().Timestamp().Str("service", "omop-export").Logger()
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// bootstrap loads and validates configuration and builds the logger.
func bootstrap() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: artifact URLs are signed with a development key unless ARTIFACT_SIGNING_KEY is set")
	}
	return cfg, logger, nil
}

// newStore builds the artifact store for cfg. The signer is nil for S3, which
// presigns its own URLs.
func newStore(ctx context.Context, cfg *config.Config) (blobstore.Store, *blobstore.URLSigner, error) {
	switch cfg.ArtifactDriver {
	case config.DriverS3:
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:          cfg.ArtifactBucket,
			Region:          cfg.ArtifactRegion,
			Endpoint:        cfg.ArtifactEndpoint,
			PathStyle:       cfg.ArtifactPathStyle,
			AccessKeyID:     cfg.ArtifactAccessKey,
			SecretAccessKey: cfg.ArtifactSecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.DriverMemory:
		signer := blobstore.NewURLSigner(cfg.PublicBaseURL, cfg.SigningKey())
		return blobstore.NewMemoryStore(signer), signer, nil
	default:
		return nil, nil, fmt.Errorf("unknown artifact driver %q", cfg.ArtifactDriver)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	concepts, err := omop.LoadConcepts(cfg.ConceptDictionaryPath)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	store, signer, err := newStore(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	provider := telemetry.NewProvider(telemetry.Config{
		ServiceName:       "omop-export",
		ServiceVersion:    version,
		Environment:       cfg.Env,
		MetricsEnabled:    telemetry.BoolPtr(cfg.MetricsEnabled),
		RuntimeCollectors: true,
	})

	queue := export.NewPGQueue(pool)
	publisher := export.NewPublisher(store, cfg.ArtifactPrefix, cfg.ArtifactURLTTL)
	svc := export.NewService(export.NewPGRepositories(pool), queue, publisher, concepts,
		export.WithLogger(logger),
		export.WithMetrics(provider),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		store:     store,
		signer:    signer,
		publisher: publisher,
		queue:     queue,
		telemetry: provider,
		svc:       svc,
	}, nil
}

func (a *app) newWorker() *export.Worker {
	return export.NewWorker(a.queue, a.svc, a.cfg.WorkerPollInterval, a.logger, a.telemetry)
}

func (a *app) Close() {
	a.pool.Close()
}

// withApp loads configuration, wires the app and runs fn with it.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
