package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/veritas/internal/logger"
	"github.com/cognicore/veritas/internal/telemetry"
	"github.com/cognicore/veritas/pkg/veritas/config"
	"github.com/cognicore/veritas/pkg/veritas/corpus"
	"github.com/cognicore/veritas/pkg/veritas/ingest"
	"github.com/cognicore/veritas/pkg/veritas/label"
	"github.com/cognicore/veritas/pkg/veritas/pipeline"
	"github.com/cognicore/veritas/pkg/veritas/store"
	"github.com/cognicore/veritas/pkg/veritas/store/memstore"
	"github.com/cognicore/veritas/pkg/veritas/store/sqlite"
)

// app bundles what every subcommand needs.
type app struct {
	cfg      config.Config
	flags    *globalFlags
	logger   *zap.Logger
	recorder *telemetry.Recorder
	pipe     *pipeline.Pipeline
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	log, err := logger.NewLogger(cfg.Logging.Env, level)
	if err != nil {
		return nil, err
	}

	metricsFile := cfg.MetricsFile
	if flags.metricsFile != "" {
		metricsFile = flags.metricsFile
	}
	var rec *telemetry.Recorder
	if metricsFile != "" {
		rec = telemetry.New()
	}
	cfg.MetricsFile = metricsFile

	pipe, err := pipeline.New(cfg,
		pipeline.WithLogger(log),
		pipeline.WithTelemetry(rec),
	)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, flags: flags, logger: log, recorder: rec, pipe: pipe}, nil
}

// attach returns ctx carrying the app logger, so pipeline stages can add
// their own fields to it.
func (a *app) attach(ctx context.Context) context.Context {
	return logger.ContextWithLogger(ctx, a.logger)
}

// close flushes the logger and writes the metrics textfile if requested.
func (a *app) close() error {
	defer a.logger.Sync() //nolint:errcheck
	if a.cfg.MetricsFile == "" {
		return nil
	}
	if err := a.recorder.WriteTextfile(a.cfg.MetricsFile); err != nil {
		return err
	}
	a.logger.Info("wrote metrics", zap.String("path", a.cfg.MetricsFile))
	return nil
}

// loadCorpus samples num_fake_articles and num_real_articles documents from
// the dataset directory or, with --jsonl, from a JSONL file.
func (a *app) loadCorpus() (fakeDocs, realDocs []corpus.Document, err error) {
	defer a.recorder.StartStage(telemetry.StageLoad)()

	var opts []ingest.Option
	if a.cfg.KeepNumeric {
		opts = append(opts, ingest.KeepNumeric())
	}
	tok := ingest.NewTokenizer(a.cfg.Stopwords, opts...)
	rng := a.pipe.Rand()

	if a.flags.jsonlPath != "" {
		docs, err := corpus.LoadJSONL(a.flags.jsonlPath, tok, a.logger)
		if err != nil {
			return nil, nil, err
		}
		allFake, allReal := corpus.Split(docs)
		if fakeDocs, err = corpus.Sample(rng, allFake, a.cfg.NumFakeArticles); err != nil {
			return nil, nil, fmt.Errorf("fake articles: %w", err)
		}
		if realDocs, err = corpus.Sample(rng, allReal, a.cfg.NumRealArticles); err != nil {
			return nil, nil, fmt.Errorf("real articles: %w", err)
		}
		return fakeDocs, realDocs, nil
	}

	loader := &corpus.Loader{
		Root:      a.cfg.DatasetPath,
		Dataset:   a.cfg.DatasetName,
		Tokenizer: tok,
		Rand:      rng,
		Logger:    a.logger,
	}
	if fakeDocs, err = loader.Load(label.Fake, a.cfg.NumFakeArticles); err != nil {
		return nil, nil, err
	}
	if realDocs, err = loader.Load(label.Real, a.cfg.NumRealArticles); err != nil {
		return nil, nil, err
	}
	return fakeDocs, realDocs, nil
}

// prepare loads the corpus and decomposes it.
func (a *app) prepare(ctx context.Context) (*pipeline.Dataset, error) {
	fakeDocs, realDocs, err := a.loadCorpus()
	if err != nil {
		return nil, err
	}
	return a.pipe.Prepare(ctx, fakeDocs, realDocs)
}

func openSink(ctx context.Context, cfg config.StoreConfig) (store.Sink, error) {
	switch cfg.Driver {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlite.OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
