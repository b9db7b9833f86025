// Package compositor implements the adaptive expand-and-check loop:
// starting from a target date and an initial buffer, it widens the date
// window until the composite's no-data percentage over the AOI drops
// below the configured threshold, or the expansion policy is exhausted.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/logger"
)

// Expansion policy defaults, matching the original science workflow
const (
	DefaultBufferStep = 15  // days added per failed iteration
	DefaultMaxBuffer  = 180 // hard cap on the buffer, in days
)

// Options holds configuration for the Compositor
type Options struct {
	Source Source
	Log    *logger.Logger

	// InitialBuffer is the starting buffer in days on either side of
	// the target date. Must be > 0 to call Compose; DailyComposites
	// over an explicit window does not use it.
	InitialBuffer int

	// Threshold is the maximum acceptable no-data percentage (0-100).
	// A composite is accepted when its no-data percentage is strictly
	// below it.
	Threshold float64

	// BufferStep is the additive widening step in days (default 15)
	BufferStep int

	// MaxBuffer caps the buffer in days (default 180)
	MaxBuffer int

	// MaxIterations caps loop iterations independently of the buffer.
	// Zero derives a cap that lets the buffer reach MaxBuffer exactly
	// once.
	MaxIterations int

	// BestEffort accepts the lowest-no-data composite seen when the
	// expansion policy is exhausted, instead of failing with
	// ThresholdError. Results accepted this way are flagged.
	BestEffort bool
}

// Compositor owns the adaptive loop. It has no mutable state between
// runs; a single Compositor may serve many AOI/date runs sequentially
// or from independent goroutines.
type Compositor struct {
	source        Source
	log           *logger.Logger
	initialBuffer int
	threshold     float64
	bufferStep    int
	maxBuffer     int
	maxIterations int
	bestEffort    bool
}

// New creates a Compositor with all dependencies injected
func New(opts Options) (*Compositor, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.InitialBuffer < 0 {
		return nil, fmt.Errorf("initial buffer must not be negative, got %d", opts.InitialBuffer)
	}
	if opts.Threshold < 0 || opts.Threshold > 100 {
		return nil, fmt.Errorf("threshold must be in [0, 100], got %f", opts.Threshold)
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	step := opts.BufferStep
	if step <= 0 {
		step = DefaultBufferStep
	}
	maxBuffer := opts.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	if maxBuffer < opts.InitialBuffer {
		return nil, fmt.Errorf("max buffer %d is below initial buffer %d", maxBuffer, opts.InitialBuffer)
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		// Enough iterations to try the initial buffer and every widened
		// buffer up to the cap
		maxIterations = (maxBuffer-opts.InitialBuffer+step-1)/step + 1
	}
	return &Compositor{
		source:        opts.Source,
		log:           log,
		initialBuffer: opts.InitialBuffer,
		threshold:     opts.Threshold,
		bufferStep:    step,
		maxBuffer:     maxBuffer,
		maxIterations: maxIterations,
		bestEffort:    opts.BestEffort,
	}, nil
}

// Compose runs the adaptive loop for one AOI and target date and
// returns the accepted result for the requested mode. Iterations are
// strictly sequential: the decision to widen depends on the previous
// composite.
func (c *Compositor) Compose(ctx context.Context, area *aoi.AOI, target time.Time, mode Mode) (*Result, error) {
	if c.initialBuffer <= 0 {
		return nil, fmt.Errorf("initial buffer must be positive, got %d", c.initialBuffer)
	}
	window := DateWindow{Target: target, BufferDays: c.initialBuffer}
	log := c.log.With("target", common.FormatISO8601(target), "mode", mode.String())

	var best *Composite
	sawImagery := false
	iterations := 0

	for {
		iterations++
		log.Debug("querying window", "window", window.String(), "buffer_days", window.BufferDays, "iteration", iterations)

		comp, err := c.source.Composite(ctx, area, window.Start(), window.End())
		switch {
		case errors.Is(err, ErrNoImagery):
			log.Info("no imagery in window, widening", "window", window.String(), "buffer_days", window.BufferDays)
		case err != nil:
			return nil, fmt.Errorf("composite query for %s failed: %w", window.String(), err)
		default:
			sawImagery = true
			comp.Window = window
			log.Info("composite computed",
				"window", window.String(),
				"images", comp.ImageCount,
				"nodata_pct", comp.NoDataPercent)

			if comp.NoDataPercent < c.threshold {
				return c.finalize(ctx, area, mode, comp, window, iterations, false)
			}
			if best == nil || comp.NoDataPercent < best.NoDataPercent {
				best = comp
			}
			log.Info("no-data above threshold, widening",
				"nodata_pct", comp.NoDataPercent, "threshold", c.threshold)
		}

		// Stop conditions are checked against the buffer just tried, so
		// the cap value itself still gets one attempt
		if window.BufferDays >= c.maxBuffer || iterations >= c.maxIterations {
			if !sawImagery {
				return nil, &NoImageryError{MaxBufferDays: window.BufferDays}
			}
			if c.bestEffort && best != nil {
				log.Warn("expansion exhausted, accepting best-effort composite",
					"nodata_pct", best.NoDataPercent, "threshold", c.threshold)
				return c.finalize(ctx, area, mode, best, best.Window, iterations, true)
			}
			achieved := 100.0
			if best != nil {
				achieved = best.NoDataPercent
			}
			return nil, &ThresholdError{
				Threshold:  c.threshold,
				Achieved:   achieved,
				BufferDays: window.BufferDays,
				Iterations: iterations,
				Best:       best,
			}
		}

		window = window.Widen(c.bufferStep)
	}
}

// finalize turns an accepted range composite into the requested result
// shape
func (c *Compositor) finalize(ctx context.Context, area *aoi.AOI, mode Mode, comp *Composite, window DateWindow, iterations int, bestEffort bool) (*Result, error) {
	res := &Result{
		Mode:       mode,
		Window:     window,
		Iterations: iterations,
		BestEffort: bestEffort,
	}
	if mode == ModeRange {
		res.Range = comp
		return res, nil
	}

	daily, err := c.DailyComposites(ctx, area, window.Start(), window.End())
	if err != nil {
		return nil, err
	}
	res.Daily = daily
	return res, nil
}

// DailyComposites produces one composite per distinct acquisition day
// in [start, end]. Days with no valid pixels in any raw image are
// excluded; days whose raw footprints overlap the AOI but whose
// finished composite is fully masked are kept and flagged. That
// asymmetry is deliberate and mirrors the upstream per-image footprint
// behavior.
func (c *Compositor) DailyComposites(ctx context.Context, area *aoi.AOI, start, end time.Time) ([]*DailyComposite, error) {
	days, err := c.source.Days(ctx, area, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing acquisition days failed: %w", err)
	}
	if len(days) == 0 {
		return nil, &NoImageryError{MaxBufferDays: 0}
	}

	out := make([]*DailyComposite, 0, len(days))
	for _, day := range days {
		if !day.HasValidPixels {
			c.log.Info("skipping day with no valid pixels", "day", common.FormatISO8601(day.Day))
			continue
		}
		comp, err := c.source.Composite(ctx, area, day.Day, day.Day)
		if errors.Is(err, ErrNoImagery) {
			// Listed day vanished between queries; treat like a
			// no-valid-pixels day
			c.log.Warn("day listed but composite empty", "day", common.FormatISO8601(day.Day))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("daily composite for %s failed: %w", common.FormatISO8601(day.Day), err)
		}
		comp.Window = DateWindow{Target: day.Day, BufferDays: 0}
		fullyMasked := comp.NoDataPercent >= 100
		if fullyMasked {
			c.log.Info("daily composite fully masked over AOI, keeping",
				"day", common.FormatISO8601(day.Day), "images", day.ImageCount)
		}
		out = append(out, &DailyComposite{
			Day:         day.Day,
			Composite:   comp,
			FullyMasked: fullyMasked,
		})
	}
	return out, nil
}
