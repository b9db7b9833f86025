// Package batch runs the compositing workflow for many area/date
// combinations in one invocation, isolating failures per run.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"landcover-pipeline/internal/logger"
)

// DefaultMaxParallel bounds concurrent runs. Each run already fans out
// its own pixel fetches, so this stays small.
const DefaultMaxParallel = 2

// Run is one area/date combination to composite
type Run struct {
	AOIPath    string
	TargetDate string
}

func (r Run) String() string {
	return fmt.Sprintf("%s @ %s", r.AOIPath, r.TargetDate)
}

// RunFunc executes a single run and returns the paths it wrote
type RunFunc func(ctx context.Context, id string, run Run) ([]string, error)

// RunResult records the outcome of one run
type RunResult struct {
	ID      string
	Run     Run
	Outputs []string
	Err     error
}

// Summary aggregates a whole batch
type Summary struct {
	Results    []RunResult
	Successful int
	Failed     int
}

// Runner executes batches with bounded parallelism
type Runner struct {
	execute     RunFunc
	maxParallel int
	log         *logger.Logger
}

// Options configures a Runner
type Options struct {
	Execute     RunFunc
	MaxParallel int
	Log         *logger.Logger
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Execute == nil {
		return nil, fmt.Errorf("batch runner requires an execute function")
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Runner{
		execute:     opts.Execute,
		maxParallel: opts.MaxParallel,
		log:         opts.Log,
	}, nil
}

// Execute runs every entry, collecting per-run outcomes. A failed run
// never aborts the others; the batch as a whole fails only when every
// run fails.
func (r *Runner) Execute(ctx context.Context, runs []Run) (*Summary, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs provided")
	}

	r.log.Info("starting batch", "runs", len(runs), "parallel", r.maxParallel)

	results := make([]RunResult, len(runs))
	sem := semaphore.NewWeighted(int64(r.maxParallel))
	var wg sync.WaitGroup

	for i, run := range runs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("batch canceled: %w", err)
		}
		wg.Add(1)
		go func(i int, run Run) {
			defer wg.Done()
			defer sem.Release(1)

			id := uuid.NewString()
			log := r.log.With("run", id)
			log.Info("run started", "aoi", run.AOIPath, "target", run.TargetDate)

			outputs, err := r.execute(ctx, id, run)
			if err != nil {
				log.Error("run failed", "error", err)
			} else {
				log.Info("run finished", "outputs", len(outputs))
			}
			results[i] = RunResult{ID: id, Run: run, Outputs: outputs, Err: err}
		}(i, run)
	}
	wg.Wait()

	summary := &Summary{Results: results}
	for _, res := range results {
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Successful++
		}
	}

	r.log.Info("batch complete", "successful", summary.Successful, "failed", summary.Failed)

	if summary.Successful == 0 {
		return summary, fmt.Errorf("all %d runs failed, first error: %w", len(runs), firstError(results))
	}
	return summary, nil
}

func firstError(results []RunResult) error {
	for _, res := range results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}
