package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"landcover-pipeline/internal/batch"
	"landcover-pipeline/internal/compositor"
	"landcover-pipeline/internal/config"
	"landcover-pipeline/internal/export"
)

var batchParallel int

var batchCmd = &cobra.Command{
	Use:   "batch <runs.yml>",
	Short: "Run range composites for many area/date combinations",
	Long: `Reads a YAML run list and builds one range composite per entry,
sharing the base config for everything except aoi-path and target-date.
Failed runs are reported at the end; the batch fails only when every
run fails.

Run list format:

  runs:
    - aoi-path: fields/north.geojson
      target-date: "2021-06-07"
    - aoi-path: fields/south.geojson
      target-date: "2021-08-15"`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchParallel, "parallel", batch.DefaultMaxParallel, "maximum concurrent runs")
	rootCmd.AddCommand(batchCmd)
}

// runList is the batch file schema
type runList struct {
	Runs []struct {
		AOIPath    string `yaml:"aoi-path"`
		TargetDate string `yaml:"target-date"`
	} `yaml:"runs"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read run list: %w", err)
	}
	var list runList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse run list: %w", err)
	}
	runs := make([]batch.Run, len(list.Runs))
	for i, r := range list.Runs {
		runs[i] = batch.Run{AOIPath: r.AOIPath, TargetDate: r.TargetDate}
	}

	p, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	runner, err := batch.NewRunner(batch.Options{
		Execute: func(ctx context.Context, id string, run batch.Run) ([]string, error) {
			return executeRun(ctx, p, cfg, run)
		},
		MaxParallel: batchParallel,
		Log:         log,
	})
	if err != nil {
		return err
	}

	summary, err := runner.Execute(ctx, runs)
	if summary != nil {
		for _, res := range summary.Results {
			if res.Err != nil {
				log.Error("run failed", "run", res.Run.String(), "error", res.Err)
			}
		}
	}
	return err
}

// executeRun builds one range composite with the base config overlaid
// by the run's area and date
func executeRun(ctx context.Context, p *pipeline, base *config.Config, run batch.Run) ([]string, error) {
	cfg := *base
	cfg.AOIPath = run.AOIPath
	cfg.TargetDate = run.TargetDate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	area, err := loadAOI(cfg.AOIPath)
	if err != nil {
		return nil, err
	}
	target, err := cfg.TargetTime()
	if err != nil {
		return nil, err
	}

	comp, err := compositor.New(compositor.Options{
		Source:        p.source,
		Log:           p.log,
		InitialBuffer: cfg.DateBuffer,
		Threshold:     cfg.NoDataThreshold,
		BufferStep:    cfg.BufferStep,
		MaxBuffer:     cfg.MaxDateBuffer,
		MaxIterations: cfg.MaxIterations,
		BestEffort:    cfg.BestEffort,
	})
	if err != nil {
		return nil, err
	}

	result, err := comp.Compose(ctx, area, target, compositor.ModeRange)
	if err != nil {
		return nil, describeComposeError(err)
	}

	name := export.RangeFileName(result.Window.Start(), result.Window.End())
	dest, err := p.writeGrid(ctx, name, result.Range.Grid)
	if err != nil {
		return nil, err
	}
	return []string{dest}, nil
}
