package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lepinkainen/bookpipeline/internal/archive"
	"github.com/lepinkainen/bookpipeline/internal/cache"
	"github.com/lepinkainen/bookpipeline/internal/config"
	"github.com/lepinkainen/bookpipeline/internal/datastore"
	"github.com/lepinkainen/bookpipeline/internal/history"
	"github.com/lepinkainen/bookpipeline/internal/metrics"
	"github.com/lepinkainen/bookpipeline/internal/openlibrary"
	"github.com/lepinkainen/bookpipeline/internal/pipeline"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	openPostgres = func(ctx context.Context, dsn string) (datastore.Store, error) {
		store, err := datastore.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	openSQLite = func(ctx context.Context, path string) (datastore.Store, error) {
		store, err := datastore.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	newArchiver = func(ctx context.Context, bucket, prefix string) (pipeline.Archiver, error) {
		archiver, err := archive.NewS3Archiver(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		return archiver, nil
	}
	newRunRecorder = func(ctx context.Context, table string, ttl time.Duration) (runRecorder, error) {
		recorder, err := history.NewRecorder(ctx, table, ttl)
		if err != nil {
			return nil, err
		}
		return recorder, nil
	}
	stdout io.Writer = os.Stdout
)

type runRecorder interface {
	Record(ctx context.Context, status pipeline.Status) (string, error)
}

// RunCloud loads configuration from the environment and runs the cloud
// pipeline once. It backs the hosted function entry point.
func RunCloud(ctx context.Context) (pipeline.Status, error) {
	if err := config.LoadDotEnv(); err != nil {
		return pipeline.Status{}, err
	}

	v := viper.New()
	if err := config.Init(v); err != nil {
		return pipeline.Status{}, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return pipeline.Status{}, err
	}

	return runPipeline(ctx, cfg, config.ModeCloud)
}

func runCommand(v *viper.Viper, mode config.Mode, reportPath string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	status, runErr := runPipeline(context.Background(), cfg, mode)
	if status.StatusCode == 0 {
		return runErr
	}

	if err := printStatus(stdout, status); err != nil {
		return errors.Join(runErr, err)
	}
	if reportPath != "" {
		if err := writeReport(reportPath, status); err != nil {
			return errors.Join(runErr, err)
		}
		slog.Info("Wrote run report", "file", reportPath)
	}
	return runErr
}

func runPipeline(ctx context.Context, cfg *config.Config, mode config.Mode) (pipeline.Status, error) {
	if err := cfg.Validate(mode); err != nil {
		return pipeline.Status{}, err
	}

	client, closeCache := newClient(cfg)
	defer closeCache()

	store, destination, err := openDestination(ctx, cfg, mode)
	if err != nil {
		return pipeline.Status{}, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}()

	recorder := metrics.New()
	p := pipeline.New(store, client, destination, cfg.SourceURL(), pipeline.WithMetrics(recorder))
	status, runErr := p.Run(ctx)

	if err := recorder.Push(ctx, cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
		slog.Warn("Failed to push metrics", "error", err)
	}
	recordHistory(ctx, cfg.History, status)

	return status, runErr
}

func recordHistory(ctx context.Context, cfg config.HistoryConfig, status pipeline.Status) {
	if cfg.Table == "" {
		return
	}

	runs, err := newRunRecorder(ctx, cfg.Table, cfg.TTL)
	if err != nil {
		slog.Warn("Run history disabled", "table", cfg.Table, "error", err)
		return
	}
	if _, err := runs.Record(ctx, status); err != nil {
		slog.Warn("Failed to record run history", "table", cfg.Table, "error", err)
	}
}

// newClient builds the Open Library client. A cache that cannot be opened
// is logged and skipped.
func newClient(cfg *config.Config) (*openlibrary.Client, func()) {
	opts := openlibrary.Options{
		UserAgent:     cfg.OpenLibrary.UserAgent,
		Timeout:       cfg.OpenLibrary.Timeout,
		RatePerSecond: cfg.OpenLibrary.RatePerSecond,
	}
	closeCache := func() {}

	if cfg.Cache.Enabled {
		cacheDB, err := cache.Open(cfg.Cache.DBFile)
		if err != nil {
			slog.Warn("Failed to open response cache, fetching directly", "file", cfg.Cache.DBFile, "error", err)
		} else {
			opts.Cache = cacheDB
			opts.CacheTTL = cfg.Cache.TTL
			closeCache = func() { _ = cacheDB.Close() }
		}
	}

	return openlibrary.NewClient(opts), closeCache
}

func openDestination(ctx context.Context, cfg *config.Config, mode config.Mode) (datastore.Store, pipeline.Destination, error) {
	switch mode {
	case config.ModeCloud:
		store, err := openPostgres(ctx, datastore.CloudDSN(cfg.Database.URL, cfg.Database.RootCert))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return store, pipeline.DirectDestination{}, nil

	case config.ModeLocal:
		store, err := openSQLite(ctx, cfg.Local.DBFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Local.DBFile, err)
		}

		destination := pipeline.StagedDestination{Dir: cfg.Local.StagingDir}
		if cfg.Archive.Bucket != "" {
			archiver, err := newArchiver(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
			if err != nil {
				slog.Warn("S3 archive disabled", "bucket", cfg.Archive.Bucket, "error", err)
			} else {
				destination.Archiver = archiver
			}
		}
		return store, destination, nil
	}

	return nil, nil, fmt.Errorf("unknown mode %q", mode)
}

func printStatus(w io.Writer, status pipeline.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return nil
}

func writeReport(path string, status pipeline.Status) error {
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
