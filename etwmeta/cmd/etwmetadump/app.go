package main

import (
	"context"
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/tekert/golang-etwmeta/config"
	"github.com/tekert/golang-etwmeta/dump"
	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/evtmeta"
	"github.com/tekert/golang-etwmeta/internal/metrics"
	"github.com/tekert/golang-etwmeta/logsampler"
	"github.com/tekert/golang-etwmeta/logsampler/adapters/phusluadapter"
	"github.com/tekert/golang-etwmeta/registry"
	"github.com/tekert/golang-etwmeta/repair"
	"github.com/tekert/golang-etwmeta/report"
)

func newLogger(cfg config.LoggingConfig) *log.Logger {
	logger := &log.Logger{
		Level:      log.ParseLevel(cfg.Level),
		TimeFormat: "15:04:05.000",
	}
	switch {
	case cfg.File != "":
		logger.Writer = &log.FileWriter{Filename: cfg.File, EnsureFolder: true}
	case cfg.Format == "json":
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	default:
		logger.Writer = &log.ConsoleWriter{ColorOutput: true}
	}

	// the parsers log through slog
	etwmeta.SetLoggerHandler(logger.Slog().Handler())
	return logger
}

func newSampler(cfg config.SamplingConfig, logger *log.Logger) *logsampler.DeduplicatingSampler {
	return logsampler.NewDeduplicatingSampler(logsampler.BackoffConfig{
		InitialInterval: cfg.Initial.Duration,
		MaxInterval:     cfg.Max.Duration,
		Factor:          cfg.Factor,
		ResetInterval:   cfg.Reset.Duration,
	}, phusluadapter.Reporter{Logger: logger})
}

func repairs(cfg config.RepairsConfig) (*repair.Table, error) {
	if cfg.Disabled {
		return nil, nil
	}
	table := repair.Default()
	if cfg.File != "" {
		user, err := repair.Load(cfg.File)
		if err != nil {
			return nil, err
		}
		table.Merge(user)
	}
	return table, nil
}

// newFetcher returns nil when the helper is disabled. The returned func
// releases the cache.
func newFetcher(ctx context.Context, cfg config.HelperConfig) (*evtmeta.Fetcher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	var cache evtmeta.Cache
	release := func() {}
	switch {
	case cfg.Redis.Enabled:
		rc := evtmeta.NewRedisCache(evtmeta.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL.Duration,
		})
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, nil, err
		}
		cache = rc
		release = func() { rc.Close() }
	case cfg.CacheDir != "":
		cache = &evtmeta.FileCache{Dir: cfg.CacheDir}
	}

	f := evtmeta.NewFetcher(cfg.Command, cache)
	if len(cfg.Args) > 0 {
		f.Args = cfg.Args
	}
	f.Timeout = cfg.Timeout.Duration
	// logs the missing helper once, up front
	f.Available()
	return f, release, nil
}

func runDump(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Logging)
	sampler := newSampler(cfg.Logging.Sampling, logger)
	defer sampler.Close()
	l := phusluadapter.New(logger, sampler)

	src, err := registry.Open(cfg.Input.Snapshot)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	l.Info().Str("snapshot", src.Dir()).
		Int("providers", len(src.Providers())).
		Int("classes", src.Classes().Len()).
		Msg("snapshot loaded")

	out, err := report.NewWriter(cfg.Output.Dir, cfg.Output.Compress)
	if err != nil {
		return err
	}
	if !cfg.Output.NoVersion {
		if err := out.WriteVersion(ctx, nil); err != nil {
			l.Warn().Err(err).Msg("cannot stamp the report with the host version")
		}
	}

	table, err := repairs(cfg.Repairs)
	if err != nil {
		return fmt.Errorf("load repairs: %w", err)
	}

	fetcher, release, err := newFetcher(ctx, cfg.Helper)
	if err != nil {
		return fmt.Errorf("helper cache: %w", err)
	}
	defer release()

	run := metrics.New()
	opts := dump.Options{
		Workers:  cfg.Pipeline.Workers,
		FailFast: cfg.Pipeline.FailFast,
		Repairs:  table,
		Classes:  src.Classes(),
		Metrics:  run,
		Logger:   l,
	}
	if fetcher != nil {
		opts.Fetcher = fetcher
	}

	summary, runErr := dump.New(src, out, opts).Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := run.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			l.Warn().Err(err).Str("file", cfg.Metrics.Textfile).Msg("cannot write metrics")
		}
	}

	if summary != nil {
		e := l.Info().Int("providers", len(summary.Results)).
			Int("repaired", summary.Repaired).
			Int("events", summary.Events).
			Int("skipped_items", summary.Skipped)
		for outcome, n := range summary.Outcomes {
			e = e.Int(outcome, n)
		}
		e.Msg("All done")
		for _, f := range summary.Failures() {
			l.Warn().Str("provider", f.Provider).AnErr("manifest", f.ManifestErr).AnErr("legacy", f.LegacyErr).
				Msg("provider failed")
		}
	}
	return runErr
}
