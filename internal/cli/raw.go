package cli

import (
	"github.com/spf13/cobra"

	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/export"
)

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Export every source image in the window unreduced",
	Long: `Writes one raw_<system-index>.tif per source image in the window,
without any compositing. The window is start-date..end-date when both
are set, otherwise target-date buffered by date-buffer on each side.`,
	RunE: runRaw,
}

func init() {
	rootCmd.AddCommand(rawCmd)
}

func runRaw(cmd *cobra.Command, args []string) error {
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
	start, end, err := cfg.Window()
	if err != nil {
		return err
	}

	log.Info("fetching raw imagery",
		"start", common.FormatISO8601(start),
		"end", common.FormatISO8601(end))

	images, err := p.source.RawImages(ctx, area, start, end)
	if err != nil {
		return err
	}

	for _, im := range images {
		name := export.RawFileName(im.Image.SystemIndex())
		if _, err := p.writeGrid(ctx, name, im.Grid); err != nil {
			return err
		}
	}

	log.Info("raw export complete", "images", len(images))
	return nil
}
