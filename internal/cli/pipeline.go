package cli

import (
	"context"
	"fmt"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/compositor"
	"landcover-pipeline/internal/config"
	"landcover-pipeline/internal/earthengine"
	"landcover-pipeline/internal/export"
	"landcover-pipeline/internal/logger"
	"landcover-pipeline/internal/raster"
)

// pipeline holds the assembled collaborators for one invocation
type pipeline struct {
	cfg    *config.Config
	log    *logger.Logger
	source *earthengine.CollectionSource
	writer export.Writer
	closer func() error
}

// newPipeline builds the data source and the output writer from the
// config. The AOI is loaded per run, not here, so batch runs can share
// one pipeline across areas.
func newPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline, error) {
	client, err := earthengine.NewClient(ctx, earthengine.Options{
		Project: cfg.Project,
		Log:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create earth engine client: %w", err)
	}

	source, err := earthengine.NewCollectionSource(earthengine.SourceOptions{
		Client:     client,
		Scale:      cfg.Scale,
		MaxWorkers: cfg.MaxWorkers,
		Log:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection source: %w", err)
	}

	p := &pipeline{cfg: cfg, log: log, source: source}

	switch cfg.Storage {
	case config.StorageGCS:
		w, err := export.NewGCSWriter(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs writer: %w", err)
		}
		p.writer = w
		p.closer = w.Close
	default:
		w, err := export.NewLocalWriter(cfg.OutDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		p.writer = w
	}
	return p, nil
}

func (p *pipeline) Close() {
	if p.closer != nil {
		if err := p.closer(); err != nil {
			p.log.Warn("closing writer failed", "error", err)
		}
	}
}

// compositor builds the adaptive loop around the pipeline's source
func (p *pipeline) compositor() (*compositor.Compositor, error) {
	return compositor.New(compositor.Options{
		Source:        p.source,
		Log:           p.log,
		InitialBuffer: p.cfg.DateBuffer,
		Threshold:     p.cfg.NoDataThreshold,
		BufferStep:    p.cfg.BufferStep,
		MaxBuffer:     p.cfg.MaxDateBuffer,
		MaxIterations: p.cfg.MaxIterations,
		BestEffort:    p.cfg.BestEffort,
	})
}

// loadAOI reads and validates the area of interest
func loadAOI(path string) (*aoi.AOI, error) {
	area, err := aoi.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load AOI from %s: %w", path, err)
	}
	return area, nil
}

// writeGrid encodes a grid and hands it to the writer
func (p *pipeline) writeGrid(ctx context.Context, name string, g *raster.Grid) (string, error) {
	data, err := export.EncodeGrid(g)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	dest, err := p.writer.WriteRaster(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	p.log.Info("raster written", "dest", dest, "bytes", len(data))
	return dest, nil
}
