package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/stencil-tile-etl/internal/adapter/csvsource"
	httpadapter "github.com/couchcryptid/stencil-tile-etl/internal/adapter/http"
	"github.com/couchcryptid/stencil-tile-etl/internal/adapter/imagery"
	kafkaadapter "github.com/couchcryptid/stencil-tile-etl/internal/adapter/kafka"
	"github.com/couchcryptid/stencil-tile-etl/internal/adapter/store"
	"github.com/couchcryptid/stencil-tile-etl/internal/config"
	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	"github.com/couchcryptid/stencil-tile-etl/internal/observability"
	"github.com/couchcryptid/stencil-tile-etl/internal/pipeline"
	"github.com/couchcryptid/stencil-tile-etl/internal/quantize"
	"github.com/spf13/cobra"
)

type mode struct {
	name domain.Mode
	read func(r io.Reader) ([]domain.Entity, error)
}

var (
	modeArea  = mode{name: domain.ModeArea, read: csvsource.ReadArea}
	modePoint = mode{name: domain.ModePoint, read: csvsource.ReadPoint}
	modeSweep = mode{name: domain.ModeSweep, read: func(r io.Reader) ([]domain.Entity, error) {
		zooms := domain.SweepZooms(minZoom, maxZoom)
		if len(zooms) == 0 {
			return nil, fmt.Errorf("empty zoom range %d..%d", minZoom, maxZoom)
		}
		return csvsource.ReadSweep(r, zooms)
	}}
)

// newMetrics is swapped in tests, where the default registry is shared
// between runs.
var newMetrics = observability.NewMetrics

func runMode(m mode) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if variant != "" {
			cfg.QuantizeVariant = variant
		}

		logger := observability.NewLogger(cfg)
		metrics := newMetrics()

		entities, err := readEntities(m)
		if err != nil {
			return err
		}

		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}

		outDir := filepath.Join(cfg.OutputDir, string(m.name))
		if cfg.DatedOutputDirs {
			outDir = domain.DatedDir(outDir)
		}

		opts := pipeline.Options{
			CropPercent: cfg.CropPercent,
			DefaultZoom: cfg.ZoomLevel,
			Workers:     cfg.Workers,
		}
		if cfg.UnprocessedDir != "" {
			rawDir := filepath.Join(cfg.UnprocessedDir, string(m.name))
			if cfg.DatedOutputDirs {
				rawDir = domain.DatedDir(rawDir)
			}
			opts.Unprocessed = store.NewOS(rawDir)
		}

		var writer *kafkaadapter.Writer
		if cfg.NotifierEnabled() {
			writer = kafkaadapter.NewWriter(cfg, logger)
			opts.Notifier = writer
			logger.Info("completion notifier enabled", "topic", cfg.KafkaTopic)
		}

		p := pipeline.New(
			imagery.NewClient(cfg, metrics, logger),
			engine,
			store.NewOS(outDir),
			opts,
			logger,
			metrics,
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var srv *httpadapter.Server
		if cfg.HTTPAddr != "" {
			srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()
		}

		logger.Info("stencil job starting",
			"mode", m.name,
			"input", inputFile,
			"output_dir", outDir,
			"variant", engine.Name(),
		)
		summary, runErr := p.Run(ctx, entities)

		shutdown(cfg, logger, srv, writer)

		if runErr != nil {
			return fmt.Errorf("%d stencils failed to persist: %w", summary.Failed, runErr)
		}
		return nil
	}
}

func readEntities(m mode) ([]domain.Entity, error) {
	f, err := os.Open(inputFile)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	entities, err := m.read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", inputFile, err)
	}
	return entities, nil
}

func newEngine(cfg *config.Config) (*quantize.Engine, error) {
	v, err := quantize.ParseVariant(cfg.QuantizeVariant)
	if err != nil {
		return nil, err
	}
	return quantize.New(quantize.Options{
		Variant:       v,
		MinResolution: cfg.MinResolution,
		FinalSize:     cfg.FinalSize,
		AspectRatio:   cfg.AspectRatio,
		Seed:          cfg.BlueNoiseSeed,
		NoiseSize:     cfg.BlueNoiseSize,
	})
}

func shutdown(cfg *config.Config, logger *slog.Logger, srv *httpadapter.Server, writer *kafkaadapter.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	logger.Info("shutdown complete")
}
