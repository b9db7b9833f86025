package raster

import (
	"fmt"

	"landcover-pipeline/internal/common"
)

// MeanReduce computes the per-pixel mean of band b across a stack of
// grids. Masked samples are skipped; a pixel masked in every grid stays
// masked.
func MeanReduce(grids []*Grid, b int) []float32 {
	size := grids[0].Width * grids[0].Height
	out := make([]float32, size)
	for i := 0; i < size; i++ {
		var sum float64
		var n int
		for _, g := range grids {
			v := g.Bands[b][i]
			if IsNoData(v) {
				continue
			}
			sum += float64(v)
			n++
		}
		if n == 0 {
			out[i] = NoData()
		} else {
			out[i] = float32(sum / float64(n))
		}
	}
	return out
}

// ModeReduce computes the per-pixel mode of band b across a stack of
// grids. Ties are broken toward the lowest value, matching the mode
// reducer of the upstream service; exported composites must reproduce
// this exactly.
func ModeReduce(grids []*Grid, b int) []float32 {
	size := grids[0].Width * grids[0].Height
	out := make([]float32, size)
	counts := make(map[float32]int)
	for i := 0; i < size; i++ {
		for k := range counts {
			delete(counts, k)
		}
		for _, g := range grids {
			v := g.Bands[b][i]
			if IsNoData(v) {
				continue
			}
			counts[v]++
		}
		if len(counts) == 0 {
			out[i] = NoData()
			continue
		}
		var best float32
		bestCount := -1
		for v, n := range counts {
			if n > bestCount || (n == bestCount && v < best) {
				best = v
				bestCount = n
			}
		}
		out[i] = best
	}
	return out
}

// Composite reduces a stack of co-registered grids into one composite:
// mean over the probability bands, mode over the label band. Band
// layout must match common.AllBands().
func Composite(grids []*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("no grids to composite")
	}
	first := grids[0]
	for _, g := range grids[1:] {
		if err := sameLattice(first, g); err != nil {
			return nil, err
		}
	}
	if len(first.Bands) != common.NumBands {
		return nil, fmt.Errorf("expected %d bands, got %d", common.NumBands, len(first.Bands))
	}

	out := NewGrid(first.Width, first.Height, first.BandNames, first.Transform, first.CRS)
	for b := range first.Bands {
		if b == common.LabelBandIndex {
			out.Bands[b] = ModeReduce(grids, b)
		} else {
			out.Bands[b] = MeanReduce(grids, b)
		}
	}
	return out, nil
}

// NoDataPercent computes the percentage of masked pixels within the
// area selected by mask, read off the label band the same way the
// original workflow counted label_mode pixels. With no pixels under the
// mask at all the result is 100.
func NoDataPercent(g *Grid, mask []bool) float64 {
	label := common.LabelBandIndex
	if label >= len(g.Bands) {
		label = len(g.Bands) - 1
	}
	var valid, nodata int
	for i, in := range mask {
		if !in {
			continue
		}
		if IsNoData(g.Bands[label][i]) {
			nodata++
		} else {
			valid++
		}
	}
	if valid+nodata == 0 {
		return 100.0
	}
	return float64(nodata) / float64(valid+nodata) * 100.0
}
