package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	"github.com/couchcryptid/stencil-tile-etl/internal/observability"
	"github.com/couchcryptid/stencil-tile-etl/internal/raster"
	"golang.org/x/sync/errgroup"
)

// TileFetcher downloads the raw tile for a viewport.
type TileFetcher interface {
	FetchTile(ctx context.Context, vp domain.Viewport) (image.Image, error)
}

// Quantizer binarizes a normalized tile and resizes it to the final size.
type Quantizer interface {
	Quantize(img image.Image) (*image.NRGBA, error)
	KeyThreshold() uint8
	Name() string
}

// Store persists an image under a name and returns its path.
type Store interface {
	Save(name string, img image.Image) (string, error)
}

// Notifier announces a persisted stencil.
type Notifier interface {
	Notify(ctx context.Context, rec domain.StencilRecord) error
}

// Options tunes a Pipeline. Unprocessed and Notifier are optional.
type Options struct {
	CropPercent float64
	DefaultZoom int
	Workers     int
	Unprocessed Store
	Notifier    Notifier
}

// Result is the outcome of one entity. State is terminal; Stage is the
// state the entity was in when it was skipped or failed.
type Result struct {
	EntityID string
	Name     string
	State    State
	Stage    State
	Path     string
	Err      error
}

// Summary counts the outcomes of a run. Pending entities were never started
// because the run was cancelled.
type Summary struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Pipeline turns entities into stencil images.
type Pipeline struct {
	fetcher   TileFetcher
	quantizer Quantizer
	store     Store
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu       sync.Mutex
	progress Summary
}

// New creates a Pipeline with the given stages and observability.
func New(f TileFetcher, q Quantizer, s Store, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CropPercent == 0 {
		opts.CropPercent = raster.DefaultCropPercent
	}
	return &Pipeline{
		fetcher:   f,
		quantizer: q,
		store:     s,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one stencil has been persisted.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not persisted any stencils yet")
	}
	return nil
}

// Progress returns the counts of the current or last run.
func (p *Pipeline) Progress() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Run processes entities, at most Workers at a time. Cancelling ctx stops
// new entities from starting; entities already in flight run to completion.
// Skipped entities never fail the run. Persistence failures are returned
// joined once every started entity has finished.
func (p *Pipeline) Run(ctx context.Context, entities []domain.Entity) (Summary, error) {
	p.logger.Info("pipeline started",
		"entities", len(entities),
		"workers", p.opts.Workers,
		"variant", p.quantizer.Name(),
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.mu.Lock()
	p.progress = Summary{Total: len(entities), Pending: len(entities)}
	p.mu.Unlock()

	// In-flight entities must not observe cancellation.
	work := context.WithoutCancel(ctx)

	var (
		g        errgroup.Group
		failMu   sync.Mutex
		failures []error
	)
	slots := make(chan struct{}, p.opts.Workers)

	for _, e := range entities {
		if !acquire(ctx, slots) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			res := p.Process(work, e)
			p.record(res)
			if res.State == StateFailed {
				failMu.Lock()
				failures = append(failures, res.Err)
				failMu.Unlock()
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	summary := p.Progress()
	p.logger.Info("pipeline finished",
		"done", summary.Done,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"pending", summary.Pending,
	)
	return summary, errors.Join(failures...)
}

// acquire takes a worker slot. The cancellation check follows the wait, so
// no entity starts after ctx is done.
func acquire(ctx context.Context, slots chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case slots <- struct{}{}:
	}
	if ctx.Err() != nil {
		<-slots
		return false
	}
	return true
}

func (p *Pipeline) record(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress.Pending--
	switch res.State {
	case StateDone:
		p.progress.Done++
	case StateSkipped:
		p.progress.Skipped++
	case StateFailed:
		p.progress.Failed++
	}
}

// Process drives one entity through the state machine and returns its
// terminal Result.
func (p *Pipeline) Process(ctx context.Context, e domain.Entity) Result {
	res := Result{EntityID: e.ID, State: StateResolving}

	req, err := domain.Resolve(e, p.opts.DefaultZoom)
	if err != nil {
		return p.skip(res, err)
	}
	res.EntityID, res.Name = req.EntityID, req.Name

	res.State = StateFetching
	raw, err := p.fetcher.FetchTile(ctx, req.Viewport)
	if err != nil {
		return p.skip(res, err)
	}

	res.State = StateNormalizing
	tile, err := raster.Normalize(raw, p.opts.CropPercent)
	if err != nil {
		return p.skip(res, err)
	}
	p.saveUnprocessed(req.Name, tile)

	res.State = StateQuantizing
	start := time.Now()
	bw, err := p.quantizer.Quantize(tile)
	p.metrics.QuantizeDuration.WithLabelValues(p.quantizer.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return p.skip(res, err)
	}

	res.State = StateKeying
	stencil := raster.Key(bw, p.quantizer.KeyThreshold())

	res.State = StatePersisting
	path, err := p.store.Save(req.Name, stencil)
	if err != nil {
		return p.fail(res, err)
	}

	res.State, res.Path = StateDone, path
	p.ready.Store(true)
	p.metrics.EntitiesProcessed.WithLabelValues(StateDone.String()).Inc()
	p.logger.Info("stencil saved", "entity_id", res.EntityID, "path", path)

	p.notify(ctx, req, path, stencil.Bounds())
	return res
}

func (p *Pipeline) skip(res Result, err error) Result {
	res.Stage, res.State, res.Err = res.State, StateSkipped, err
	p.metrics.EntitiesProcessed.WithLabelValues(StateSkipped.String()).Inc()
	p.metrics.Skips.WithLabelValues(res.Stage.String()).Inc()
	p.logger.Warn("entity skipped",
		"entity_id", res.EntityID,
		"stage", res.Stage.String(),
		"reason", err,
	)
	return res
}

func (p *Pipeline) fail(res Result, err error) Result {
	res.Stage, res.State, res.Err = res.State, StateFailed, err
	p.metrics.EntitiesProcessed.WithLabelValues(StateFailed.String()).Inc()
	p.logger.Error("entity failed",
		"entity_id", res.EntityID,
		"stage", res.Stage.String(),
		"error", err,
	)
	return res
}

// saveUnprocessed keeps a copy of the normalized tile. A failed copy is
// logged and does not affect the entity.
func (p *Pipeline) saveUnprocessed(name string, tile image.Image) {
	if p.opts.Unprocessed == nil {
		return
	}
	if _, err := p.opts.Unprocessed.Save(name, tile); err != nil {
		p.logger.Warn("save unprocessed tile failed", "name", name, "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, req domain.TileRequest, path string, b image.Rectangle) {
	if p.opts.Notifier == nil {
		return
	}
	rec := domain.StencilRecord{
		ID:          req.EntityID,
		Name:        req.Name,
		Mode:        req.Viewport.Mode,
		Variant:     p.quantizer.Name(),
		Path:        path,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Angle:       req.Viewport.Angle,
		ProcessedAt: domain.Now(),
	}
	if err := p.opts.Notifier.Notify(ctx, rec); err != nil {
		p.metrics.Notifications.WithLabelValues("error").Inc()
		p.logger.Warn("publish completion failed", "entity_id", req.EntityID, "error", err)
		return
	}
	p.metrics.Notifications.WithLabelValues("success").Inc()
}
