package earthengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/compositor"
	"landcover-pipeline/internal/logger"
	"landcover-pipeline/internal/raster"
)

const (
	// DefaultWorkers is the default number of concurrent pixel fetches
	DefaultWorkers = 10

	// DefaultCacheSize is the default per-image grid cache capacity.
	// Adaptive widening re-queries every narrower window's images, so
	// the cache pays for itself on the second iteration.
	DefaultCacheSize = 128
)

// SourceOptions holds configuration for the CollectionSource
type SourceOptions struct {
	Client     *Client
	Scale      float64 // meters per pixel, default common.DefaultScale
	MaxWorkers int
	CacheSize  int
	Log        *logger.Logger
}

// CollectionSource implements compositor.Source against the Dynamic
// World collection: it lists images per window, fetches their pixels on
// a shared UTM lattice, and reduces them client-side.
type CollectionSource struct {
	client     *Client
	scale      float64
	sem        *semaphore.Weighted
	maxWorkers int64
	cache      *lru.Cache[string, *raster.Grid]
	log        *logger.Logger
}

// NewCollectionSource creates a source with all dependencies injected
func NewCollectionSource(opts SourceOptions) (*CollectionSource, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = common.DefaultScale
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *raster.Grid](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create grid cache: %w", err)
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &CollectionSource{
		client:     opts.Client,
		scale:      scale,
		sem:        semaphore.NewWeighted(int64(maxWorkers)),
		maxWorkers: int64(maxWorkers),
		cache:      cache,
		log:        log.With("component", "source"),
	}, nil
}

// Days lists the distinct acquisition days in [start, end] whose
// footprints intersect the AOI, with a per-day flag for whether any raw
// image contributes valid pixels over the AOI.
func (s *CollectionSource) Days(ctx context.Context, area *aoi.AOI, start, end time.Time) ([]compositor.DayInfo, error) {
	images, err := s.client.ListImages(ctx, area, start, end)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, nil
	}

	spec, err := GridSpecForAOI(area, s.scale)
	if err != nil {
		return nil, err
	}
	grids, err := s.fetchGrids(ctx, images, spec)
	if err != nil {
		return nil, err
	}
	mask := raster.RasterizeMask(grids[0], spec.ProjectAOI(area))

	byDay := make(map[time.Time]*compositor.DayInfo)
	for i, im := range images {
		day := im.Day()
		info, ok := byDay[day]
		if !ok {
			info = &compositor.DayInfo{Day: day}
			byDay[day] = info
		}
		info.ImageCount++
		if !info.HasValidPixels && validPixelsUnderMask(grids[i], mask) > 0 {
			info.HasValidPixels = true
		}
	}

	out := make([]compositor.DayInfo, 0, len(byDay))
	for _, info := range byDay {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// Composite aggregates all imagery in [start, end]: mean over the
// probability bands, mode with lowest-value tie-break over the label
// band, and the no-data percentage over the AOI.
func (s *CollectionSource) Composite(ctx context.Context, area *aoi.AOI, start, end time.Time) (*compositor.Composite, error) {
	images, err := s.client.ListImages(ctx, area, start, end)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w for %s..%s", compositor.ErrNoImagery,
			common.FormatISO8601(start), common.FormatISO8601(end))
	}

	spec, err := GridSpecForAOI(area, s.scale)
	if err != nil {
		return nil, err
	}
	grids, err := s.fetchGrids(ctx, images, spec)
	if err != nil {
		return nil, err
	}

	composite, err := raster.Composite(grids)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce %d grids: %w", len(grids), err)
	}
	mask := raster.RasterizeMask(composite, spec.ProjectAOI(area))
	pct := raster.NoDataPercent(composite, mask)

	s.log.Debug("composite reduced",
		"images", len(images),
		"grid", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"crs", spec.CRS,
		"nodata_pct", pct)

	return &compositor.Composite{
		Grid:          composite,
		NoDataPercent: pct,
		ImageCount:    len(images),
	}, nil
}

// RawImage is one unreduced source image with its pixels
type RawImage struct {
	Image Image
	Grid  *raster.Grid
}

// RawImages fetches every image in [start, end] without compositing,
// fully-masked footprints included
func (s *CollectionSource) RawImages(ctx context.Context, area *aoi.AOI, start, end time.Time) ([]RawImage, error) {
	images, err := s.client.ListImages(ctx, area, start, end)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w for %s..%s", compositor.ErrNoImagery,
			common.FormatISO8601(start), common.FormatISO8601(end))
	}
	spec, err := GridSpecForAOI(area, s.scale)
	if err != nil {
		return nil, err
	}
	grids, err := s.fetchGrids(ctx, images, spec)
	if err != nil {
		return nil, err
	}
	out := make([]RawImage, len(images))
	for i := range images {
		out[i] = RawImage{Image: images[i], Grid: grids[i]}
	}
	return out, nil
}

// fetchGrids fetches pixel grids for all images concurrently, bounded
// by the semaphore, preserving input order. The adaptive loop itself
// stays sequential; only the fetches within one iteration fan out.
func (s *CollectionSource) fetchGrids(ctx context.Context, images []Image, spec GridSpec) ([]*raster.Grid, error) {
	grids := make([]*raster.Grid, len(images))
	errs := make([]error, len(images))

	var wg sync.WaitGroup
	for i, im := range images {
		key := cacheKey(im, spec)
		if g, ok := s.cache.Get(key); ok {
			grids[i] = g
			continue
		}

		wg.Add(1)
		go func(i int, im Image, key string) {
			defer wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			defer s.sem.Release(1)

			g, err := s.client.FetchPixels(ctx, im, spec)
			if err != nil {
				errs[i] = err
				return
			}
			s.cache.Add(key, g)
			grids[i] = g
		}(i, im, key)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pixels for %s: %w", images[i].SystemIndex(), err)
		}
	}
	return grids, nil
}

func validPixelsUnderMask(g *raster.Grid, mask []bool) int {
	label := common.LabelBandIndex
	count := 0
	for i, in := range mask {
		if in && !raster.IsNoData(g.Bands[label][i]) {
			count++
		}
	}
	return count
}

func cacheKey(im Image, spec GridSpec) string {
	return fmt.Sprintf("%s|%s|%dx%d|%.1f,%.1f,%.1f", im.Name, spec.CRS,
		spec.Width, spec.Height, spec.Transform[0], spec.Transform[2], spec.Transform[5])
}
