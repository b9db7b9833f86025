package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"landcover-pipeline/internal/compositor"
	"landcover-pipeline/internal/export"
)

var compositeCmd = &cobra.Command{
	Use:   "composite",
	Short: "Build one adaptive range composite around the target date",
	Long: `Composites all imagery in an adaptively widened window around the
target date into a single multiband GeoTIFF named
dynamic_world_<start>_<end>.tif.`,
	RunE: runComposite,
}

func init() {
	rootCmd.AddCommand(compositeCmd)
}

func runComposite(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()
	ctx := cmd.Context()

	p, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	area, err := loadAOI(cfg.AOIPath)
	if err != nil {
		return err
	}
	target, err := cfg.TargetTime()
	if err != nil {
		return err
	}

	comp, err := p.compositor()
	if err != nil {
		return err
	}
	result, err := comp.Compose(ctx, area, target, compositor.ModeRange)
	if err != nil {
		return describeComposeError(err)
	}

	name := export.RangeFileName(result.Window.Start(), result.Window.End())
	dest, err := p.writeGrid(ctx, name, result.Range.Grid)
	if err != nil {
		return err
	}

	log.Info("composite complete",
		"dest", dest,
		"window", result.Window.String(),
		"images", result.Range.ImageCount,
		"nodata_pct", result.Range.NoDataPercent,
		"iterations", result.Iterations,
		"best_effort", result.BestEffort)
	return nil
}

// describeComposeError rewraps the loop's terminal errors with
// user-facing advice
func describeComposeError(err error) error {
	var noImagery *compositor.NoImageryError
	if errors.As(err, &noImagery) {
		return fmt.Errorf("%w (check the AOI and target date against the collection's coverage)", err)
	}
	var threshold *compositor.ThresholdError
	if errors.As(err, &threshold) {
		return fmt.Errorf("%w (raise nodata-threshold, raise max-date-buffer, or set best-effort: true)", err)
	}
	return err
}
