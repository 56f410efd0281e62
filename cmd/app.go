package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kozaktomas/faceauth/internal/config"
	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/database/postgres"
	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/kozaktomas/faceauth/internal/metrics"
	"github.com/kozaktomas/faceauth/internal/recognizer"
)

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the log settings. Logs go to
// stderr so command output on stdout stays parseable.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// openBackend opens the configured reference storage. The returned close
// function releases it.
func openBackend(ctx context.Context, cfg *config.Config) (database.Backend, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		repo := postgres.NewReferenceRepository(pool, cfg.Matching.EmbeddingDimension)
		return repo, func() { pool.Close() }, nil
	default:
		return openFileBackend(cfg), func() {}, nil
	}
}

func openFileBackend(cfg *config.Config) *database.FileBackend {
	return database.NewFileBackend(cfg.Store.Root, cfg.Store.Extension, cfg.Matching.EmbeddingDimension)
}

// openRecognizer opens the configured store and wraps it in a recognizer.
// m may be nil.
func openRecognizer(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Recorder) (*recognizer.Recognizer, func(), error) {
	backend, closeFn, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := database.StoreOptions{
		Dimension: cfg.Matching.EmbeddingDimension,
		Index:     cfg.Index.Enabled,
		IndexPath: cfg.Index.Path,
		Logger:    logger,
	}
	if m != nil {
		opts.Observer = m
	}
	store, err := database.OpenStore(ctx, backend, opts)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("loading references: %w", err)
	}

	rec := recognizer.New(store, recognizer.Options{
		Threshold: cfg.Matching.Threshold,
		TopK:      cfg.Matching.TopK,
		Policy: facematch.EnrollmentPolicy{
			DLow:  cfg.Enrollment.DLow,
			DHigh: cfg.Enrollment.DHigh,
		},
		EnrollEnabled: cfg.Enrollment.Enabled,
		Metrics:       m,
		Logger:        logger,
	})
	return rec, closeFn, nil
}

// setup is the common prologue of commands working on the store.
func setup(ctx context.Context) (*config.Config, *recognizer.Recognizer, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	rec, closeFn, err := openRecognizer(ctx, cfg, newLogger(cfg), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, rec, closeFn, nil
}

// readEmbedding reads an embedding file given on the command line.
func readEmbedding(path string) (facematch.Embedding, error) {
	e, err := database.ReadEmbeddingFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading embedding %s: %w", path, err)
	}
	return e, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatDistance(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *d)
}
