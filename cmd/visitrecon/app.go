package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/visitrecon/internal/config"
	"github.com/ehr/visitrecon/internal/domain/document"
	"github.com/ehr/visitrecon/internal/domain/quality"
	"github.com/ehr/visitrecon/internal/domain/reconcile"
	"github.com/ehr/visitrecon/internal/domain/segment"
	"github.com/ehr/visitrecon/internal/platform/db"
	"github.com/ehr/visitrecon/internal/platform/extractor"
	"github.com/ehr/visitrecon/internal/platform/seal"
	"github.com/ehr/visitrecon/internal/platform/telemetry"
	"github.com/ehr/visitrecon/internal/platform/webhook"
	"github.com/ehr/visitrecon/migrations"
)

const version = "0.1.0"

// app holds the wired pipeline shared by the server and the CLI commands.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	telemetry  *telemetry.TelemetryProvider
	segmenter  *segment.Segmenter
	reconciler *reconcile.Reconciler
	assessor   *quality.Assessor
	repo       document.Repository
	probe      db.Probe
	service    *document.Service
	closers    []func()
}

// newLogger builds the process logger. Development gets console output.
// Logs go to stderr so CLI commands can write results to stdout.
func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// newApp wires the pipeline against the configured store. ext overrides the
// configured field extractor when non-nil.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, ext extractor.FieldExtractor) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.telemetry = telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceVersion: version,
		Environment:    cfg.Env,
		RuntimeMetrics: true,
	})

	var err error
	a.segmenter, err = segment.NewSegmenter(logger, cfg.BoundaryPatterns...)
	if err != nil {
		return nil, fmt.Errorf("boundary patterns: %w", err)
	}
	a.reconciler, err = reconcile.New(cfg.FuzzyThreshold,
		reconcile.WithLogger(logger),
		reconcile.WithObserver(a.telemetry),
		reconcile.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, err
	}
	a.assessor, err = quality.NewAssessor(cfg.ReviewConfidenceThreshold)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	if ext == nil {
		ext = a.fieldExtractor()
	}
	opts := []document.Option{
		document.WithLogger(logger),
		document.WithRecorder(a.telemetry),
		document.WithMaxPages(cfg.MaxPageCount),
		document.WithWorkers(cfg.Workers),
		document.WithPHILogging(cfg.LogPHI),
	}
	if endpoints := webhook.ParseEndpoints(cfg.WebhookURLs, cfg.WebhookSecret, cfg.WebhookEvents); len(endpoints) > 0 {
		n, err := webhook.NewNotifier(endpoints, webhook.WithLogger(logger))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("WEBHOOK_URLS: %w", err)
		}
		a.closers = append(a.closers, n.Close)
		opts = append(opts, document.WithPublisher(n))
		logger.Info().Int("endpoints", len(endpoints)).Msg("webhook notifications enabled")
	}
	a.service = document.NewService(a.repo, a.segmenter, ext, a.reconciler, a.assessor, opts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	var repoOpts []document.RepoOption
	if a.cfg.EncryptionEnabled() {
		keys, err := seal.ParseKeyring(a.cfg.EncryptionKey, a.cfg.EncryptionKeyVersion, a.cfg.EncryptionPreviousKeys)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY: %w", err)
		}
		repoOpts = append(repoOpts, document.WithSealer(keys))
		a.logger.Info().Int("key_version", keys.Version()).Msg("document encryption at rest enabled")
	} else if a.cfg.StoreDriver != config.StoreMemory {
		a.logger.Warn().Msg("PHI_ENCRYPTION_KEY not set; documents are stored unencrypted")
	}

	switch a.cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns, a.cfg.DBSchema)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		n, err := db.EnsureSchema(ctx, pool, a.cfg.DBSchema, migrations.FS)
		if err != nil {
			return err
		}
		a.logger.Info().Str("schema", a.cfg.DBSchema).Int("applied", n).Msg("connected to postgres")
		a.repo = document.NewPGRepo(pool, repoOpts...)
		a.probe = db.PGProbe(pool)

	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		a.repo, err = document.NewSQLiteRepo(ctx, sqlDB, repoOpts...)
		if err != nil {
			return err
		}
		a.logger.Info().Str("path", a.cfg.SQLitePath).Msg("opened sqlite store")
		a.probe = db.SQLiteProbe(sqlDB)

	default:
		a.repo = document.NewMemoryRepo()
		a.probe = db.Probe{Driver: config.StoreMemory}
		a.logger.Warn().Msg("using in-memory document store; documents are lost on exit")
	}
	return nil
}

// fieldExtractor returns the HTTP client when a service URL is configured.
// Without one every chunk becomes a placeholder visit flagged for review.
func (a *app) fieldExtractor() extractor.FieldExtractor {
	if a.cfg.FieldExtractorURL == "" {
		a.logger.Warn().Msg("FIELD_EXTRACTOR_URL not set; visits will be flagged for manual review")
		return extractor.NewStatic(nil)
	}
	policy := extractor.DefaultRetryPolicy()
	policy.MaxRetries = a.cfg.FieldExtractorMaxRetries
	return extractor.NewClient(a.cfg.FieldExtractorURL, a.cfg.FieldExtractorTimeout,
		extractor.WithRetryPolicy(policy),
		extractor.WithLogger(a.logger),
	)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
